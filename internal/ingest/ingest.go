// Package ingest turns conversation turns into episodic memories. Entity
// extraction and importance scoring are cheap heuristics; anything worth a
// real distillation waits for consolidation.
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/scrypster/recall/internal/engine"
	"github.com/scrypster/recall/pkg/types"
)

// minTurnLength drops turns too short to carry meaning.
const minTurnLength = 20

// MemoryStore is the slice of the engine ingest needs.
type MemoryStore interface {
	Store(ctx context.Context, content string, opts engine.StoreOptions) (*types.MemoryRecord, error)
}

// Ingester stores conversation turns as episodic memories.
type Ingester struct {
	store   MemoryStore
	limiter *rate.Limiter
	log     zerolog.Logger

	now func() time.Time
}

// New builds an Ingester. ratePerSecond bounds transcript upserts; zero or
// negative means 10/s.
func New(store MemoryStore, ratePerSecond float64, log zerolog.Logger) *Ingester {
	if ratePerSecond <= 0 {
		ratePerSecond = 10
	}
	return &Ingester{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		log:     log.With().Str("component", "ingest").Logger(),
		now:     time.Now,
	}
}

// NewSessionID returns a fresh lexicographically sortable session id.
func NewSessionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// IngestTurn stores one turn as an episodic memory. Turns shorter than the
// minimum are skipped and return (nil, nil).
func (in *Ingester) IngestTurn(ctx context.Context, turn Turn, sessionID string) (*types.MemoryRecord, error) {
	content := strings.TrimSpace(turn.Content)
	if len(content) < minTurnLength {
		return nil, nil
	}
	role := turn.Role
	if role == "" {
		role = "user"
	}

	if err := in.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	imp := ScoreImportance(content, role)
	rec, err := in.store.Store(ctx, fmt.Sprintf("[%s] %s", role, content), engine.StoreOptions{
		Type:       types.Episodic,
		Importance: &imp,
		Entities:   ExtractEntities(content),
		SessionID:  sessionID,
		Metadata: map[string]any{
			"role":        role,
			"ingested_at": in.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return nil, err
	}

	in.log.Debug().Str("id", rec.ID).Str("role", role).
		Float64("importance", imp).Msg("turn ingested")
	return rec, nil
}

// IngestTranscript reads a transcript file (JSON array of turns, or
// "role: message" lines) and ingests every turn under one session. When
// sessionID is empty a fresh one is generated. Returns the session id and
// how many turns were stored.
func (in *Ingester) IngestTranscript(ctx context.Context, content, sessionID string) (string, int, error) {
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	turns, err := ParseTranscript(content)
	if err != nil {
		return "", 0, err
	}

	count := 0
	for _, turn := range turns {
		rec, err := in.IngestTurn(ctx, turn, sessionID)
		if err != nil {
			return sessionID, count, err
		}
		if rec != nil {
			count++
		}
	}

	in.log.Info().Str("session_id", sessionID).Int("turns", count).Msg("transcript ingested")
	return sessionID, count, nil
}

var (
	mentionRe = regexp.MustCompile(`@(\w+)`)
	urlHostRe = regexp.MustCompile(`https?://([^\s/]+)`)
	codeRe    = regexp.MustCompile(`\b([a-z]+_[a-z_]+|[A-Z][a-z]+[A-Z][a-zA-Z]*)\b`)
)

// domainKeywords are always tagged when present, so common infrastructure
// topics cluster without any NLP.
var domainKeywords = []string{"docker", "github", "kubernetes", "postgres", "redis", "qdrant", "ollama", "memory"}

const (
	maxCodeTerms = 5
	maxEntities  = 10
)

// ExtractEntities pulls entity tags out of free text: @mentions, URL hosts,
// code-like identifiers and a fixed keyword list. Deduplicated, capped.
func ExtractEntities(text string) []string {
	seen := map[string]struct{}{}
	var entities []string
	add := func(e string) {
		e = strings.ToLower(e)
		if _, dup := seen[e]; dup || e == "" {
			return
		}
		seen[e] = struct{}{}
		entities = append(entities, e)
	}

	for _, m := range mentionRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	for _, m := range urlHostRe.FindAllStringSubmatch(text, -1) {
		add(m[1])
	}
	code := codeRe.FindAllString(text, -1)
	if len(code) > maxCodeTerms {
		code = code[:maxCodeTerms]
	}
	for _, c := range code {
		add(c)
	}
	lower := strings.ToLower(text)
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			add(kw)
		}
	}

	if len(entities) > maxEntities {
		entities = entities[:maxEntities]
	}
	return entities
}

// ScoreImportance estimates a turn's importance from its role, trigger
// words and length. Always in [0,1].
func ScoreImportance(text, role string) float64 {
	importance := 0.5
	lower := strings.ToLower(text)

	if role == "user" {
		importance += 0.1
		for _, w := range []string{"prefer", "want", "need", "important", "remember"} {
			if strings.Contains(lower, w) {
				importance += 0.2
				break
			}
		}
	}
	if role == "assistant" {
		for _, w := range []string{"created", "installed", "configured", "deployed"} {
			if strings.Contains(lower, w) {
				importance += 0.15
				break
			}
		}
	}
	if len(text) > 200 {
		importance += 0.1
	}

	if importance > 1 {
		importance = 1
	}
	return importance
}
