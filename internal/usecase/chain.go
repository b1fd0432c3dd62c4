package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"taxrag/internal/domain"
	"taxrag/internal/port"
)

// assistantAck follows each instruction so the model treats it as settled
// context rather than a question.
const assistantAck = "Okay."

// ChainOptions configures a Chain.
type ChainOptions struct {
	K               int
	MaxHistoryTurns int // most recent turns placed in prompts; 0 keeps all
	Verbose         bool
	Logger          *slog.Logger
}

// Chain answers questions in the context of a session: it rewrites the
// question into a standalone form, retrieves chunks for it, and asks the
// model for an answer grounded in them.
type Chain struct {
	llm       port.LLM
	retriever port.Retriever
	history   port.HistoryStore
	prompts   *Prompts
	k         int
	maxTurns  int
	verbose   bool
	logger    *slog.Logger
}

func NewChain(llm port.LLM, retriever port.Retriever, history port.HistoryStore, prompts *Prompts, opts ChainOptions) *Chain {
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if prompts == nil {
		prompts = MustLoadPrompts()
	}
	return &Chain{
		llm:       llm,
		retriever: retriever,
		history:   history,
		prompts:   prompts,
		k:         opts.K,
		maxTurns:  opts.MaxHistoryTurns,
		verbose:   opts.Verbose,
		logger:    opts.Logger,
	}
}

// NewSession starts a conversation with an empty history.
func (c *Chain) NewSession() domain.Session {
	return domain.Session{ID: uuid.NewString(), CreatedAt: time.Now().UTC()}
}

// Query runs one turn. The turn is appended to the session history only
// after an answer was produced.
func (c *Chain) Query(ctx context.Context, sessionID, question string) (*domain.QueryResult, error) {
	const op = "usecase.query"

	if sessionID == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "empty session id")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.Errorf(domain.KindInvalidInput, op, "empty question")
	}

	turns, err := c.history.Load(ctx, sessionID)
	if err != nil {
		c.logger.Error("Failed to load history",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil, classify(domain.KindStorage, op, err)
	}
	window := c.window(turns)

	standalone, err := c.contextualize(ctx, window, question)
	if err != nil {
		return nil, err
	}

	chunks, err := c.retriever.Search(ctx, standalone, c.k)
	if err != nil {
		return nil, err
	}

	answer, err := c.answer(ctx, window, standalone, chunks)
	if err != nil {
		return nil, err
	}

	turn := domain.Turn{Question: question, Standalone: standalone, Answer: answer, At: time.Now().UTC()}
	if err := c.history.Append(ctx, sessionID, turn); err != nil {
		c.logger.Error("Failed to save turn",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()))
		return nil, classify(domain.KindStorage, op, err)
	}

	return &domain.QueryResult{
		SessionID:  sessionID,
		Question:   question,
		Standalone: standalone,
		Answer:     answer,
		Sources:    chunks,
	}, nil
}

// Retrieve runs retrieval alone, without touching any session.
func (c *Chain) Retrieve(ctx context.Context, query string, k int) ([]domain.ScoredChunk, error) {
	if k <= 0 {
		k = c.k
	}
	return c.retriever.Search(ctx, query, k)
}

func (c *Chain) window(turns []domain.Turn) []domain.Turn {
	if c.maxTurns > 0 && len(turns) > c.maxTurns {
		return turns[len(turns)-c.maxTurns:]
	}
	return turns
}

// contextualize returns the question unchanged when there is no history.
func (c *Chain) contextualize(ctx context.Context, window []domain.Turn, question string) (string, error) {
	if len(window) == 0 {
		return question, nil
	}

	messages := c.buildMessages(c.prompts.Contextualize(), window, question)
	reply, err := c.chat(ctx, "contextualize", messages)
	if err != nil {
		return "", err
	}
	standalone := strings.TrimSpace(reply)
	if standalone == "" {
		c.logger.Warn("Model returned an empty standalone question, using the original")
		return question, nil
	}
	return standalone, nil
}

func (c *Chain) answer(ctx context.Context, window []domain.Turn, standalone string, chunks []domain.ScoredChunk) (string, error) {
	instruction, err := c.prompts.QA(chunks)
	if err != nil {
		return "", err
	}
	return c.chat(ctx, "answer", c.buildMessages(instruction, window, standalone))
}

// buildMessages lays out instruction, acknowledgement, history and question.
func (c *Chain) buildMessages(instruction string, window []domain.Turn, question string) []port.Message {
	messages := make([]port.Message, 0, 3+2*len(window))
	messages = append(messages,
		port.Message{Role: port.RoleUser, Content: instruction},
		port.Message{Role: port.RoleAssistant, Content: assistantAck},
	)
	for _, t := range window {
		messages = append(messages,
			port.Message{Role: port.RoleUser, Content: t.Question},
			port.Message{Role: port.RoleAssistant, Content: t.Answer},
		)
	}
	return append(messages, port.Message{Role: port.RoleUser, Content: question})
}

func (c *Chain) chat(ctx context.Context, step string, messages []port.Message) (string, error) {
	if c.verbose {
		for i, m := range messages {
			c.logger.Debug("Prompt message",
				slog.String("step", step),
				slog.Int("index", i),
				slog.String("role", string(m.Role)),
				slog.String("content", m.Content))
		}
	}

	start := time.Now()
	reply, err := c.llm.Chat(ctx, messages)
	if err != nil {
		c.logger.Error("Model call failed",
			slog.String("step", step),
			slog.String("model", c.llm.ModelName()),
			slog.String("error", err.Error()))
		return "", classify(domain.KindLLM, "usecase."+step, err)
	}

	c.logger.Debug("Model replied",
		slog.String("step", step),
		slog.Duration("elapsed", time.Since(start)),
		slog.Int("chars", len(reply)))
	return reply, nil
}

// classify keeps an existing kind and otherwise tags err with kind.
func classify(kind domain.Kind, op string, err error) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.E(kind, op, err)
}
