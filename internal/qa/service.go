// Package qa implements the knowledge-base rules on top of store.QaStore.
package qa

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/metrics"
	"shaneshark.com/portfolio/internal/store"
)

const (
	maxQuestionRunes = 500
	maxTagRunes      = 50

	publicDefaultSize = 12
	publicMaxSize     = 20
	adminDefaultSize  = 20
	adminMaxSize      = 100
)

// CreateRequest is the admin payload for a new entry
type CreateRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Tag      string `json:"tag"`
	IsHot    *int   `json:"isHot,omitempty"`
}

// UpdateRequest carries only the fields to change
type UpdateRequest struct {
	ID       store.ID `json:"id,omitempty"`
	Question *string  `json:"question,omitempty"`
	Answer   *string  `json:"answer,omitempty"`
	Tag      *string  `json:"tag,omitempty"`
	IsHot    *int     `json:"isHot,omitempty"`
}

// Service applies validation and paging rules to QA storage
type Service struct {
	store  store.QaStore
	maxHot int
	now    func() time.Time
}

// NewService creates a service that picks at most maxHot entries per hot push
func NewService(s store.QaStore, maxHot int) *Service {
	if maxHot <= 0 {
		maxHot = 3
	}
	return &Service{store: s, maxHot: maxHot, now: time.Now}
}

// Validate checks an entry before it is written. add requires every field.
func Validate(q *store.QaInfo, add bool) error {
	if q == nil {
		return apperr.Params("")
	}
	if add && (isBlank(q.Question) || isBlank(q.Answer) || isBlank(q.Tag)) {
		return apperr.Params("question, answer and tag are required")
	}
	if !isBlank(q.Question) && utf8.RuneCountInString(q.Question) > maxQuestionRunes {
		return apperr.Params("question too long")
	}
	if !isBlank(q.Tag) && utf8.RuneCountInString(q.Tag) > maxTagRunes {
		return apperr.Params("tag too long")
	}
	if q.IsHot != 0 && q.IsHot != 1 {
		return apperr.Params("isHot must be 0 or 1")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func normalizePaging(q store.QaQuery, defaultSize, maxSize int64, tooLarge string) (store.QaQuery, error) {
	if q.Current <= 0 {
		q.Current = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = defaultSize
	}
	if q.PageSize > maxSize {
		return q, apperr.Params(tooLarge)
	}
	// keep (Current-1)*PageSize inside int64
	if last := math.MaxInt64 / q.PageSize; q.Current > last {
		q.Current = last
	}
	q.Tag = strings.TrimSpace(q.Tag)
	q.Keyword = strings.TrimSpace(q.Keyword)
	return q, nil
}

// ListPublic serves the public listing, capped at 20 per page
func (s *Service) ListPublic(ctx context.Context, q store.QaQuery) (store.Page[store.QaInfo], error) {
	q, err := normalizePaging(q, publicDefaultSize, publicMaxSize, "page size too large")
	if err != nil {
		return store.Page[store.QaInfo]{}, err
	}
	return s.store.ListQa(ctx, q)
}

// ListAdmin serves the admin listing, capped at 100 per page
func (s *Service) ListAdmin(ctx context.Context, q store.QaQuery) (store.Page[store.QaInfo], error) {
	q, err := normalizePaging(q, adminDefaultSize, adminMaxSize, "at most 100 per page")
	if err != nil {
		return store.Page[store.QaInfo]{}, err
	}
	return s.store.ListQa(ctx, q)
}

// GetPublic returns an entry and counts the view
func (s *Service) GetPublic(ctx context.Context, id store.ID) (*store.QaInfo, error) {
	if id <= 0 {
		return nil, apperr.Params("")
	}
	if err := s.store.IncrementQaViews(ctx, id); err != nil {
		return nil, mapNotFound(err)
	}
	metrics.RecordQaView()

	qa, err := s.store.GetQa(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return qa, nil
}

// GetAdmin returns an entry without counting a view
func (s *Service) GetAdmin(ctx context.Context, id store.ID) (*store.QaInfo, error) {
	if id <= 0 {
		return nil, apperr.Params("")
	}
	qa, err := s.store.GetQa(ctx, id)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return qa, nil
}

// Create stores a new entry and returns its id
func (s *Service) Create(ctx context.Context, req CreateRequest) (store.ID, error) {
	now := s.now()
	q := &store.QaInfo{
		Question:   req.Question,
		Answer:     req.Answer,
		Tag:        strings.TrimSpace(req.Tag),
		CreateTime: now,
		UpdateTime: now,
	}
	if req.IsHot != nil {
		q.IsHot = *req.IsHot
	}
	if err := Validate(q, true); err != nil {
		return 0, err
	}
	if err := s.store.CreateQa(ctx, q); err != nil {
		return 0, fmt.Errorf("create qa: %w", err)
	}

	log.Info().Str("id", q.ID.String()).Str("tag", q.Tag).Msg("QA entry created")
	return q.ID, nil
}

// Update merges the non-nil fields of req into the stored entry
func (s *Service) Update(ctx context.Context, id store.ID, req UpdateRequest) error {
	if id <= 0 {
		return apperr.Params("")
	}
	q, err := s.store.GetQa(ctx, id)
	if err != nil {
		return mapNotFound(err)
	}
	if req.Question != nil {
		q.Question = *req.Question
	}
	if req.Answer != nil {
		q.Answer = *req.Answer
	}
	if req.Tag != nil {
		q.Tag = strings.TrimSpace(*req.Tag)
	}
	if req.IsHot != nil {
		q.IsHot = *req.IsHot
	}
	if err := Validate(q, false); err != nil {
		return err
	}
	q.UpdateTime = s.now()

	if err := s.store.UpdateQa(ctx, q); err != nil {
		return mapNotFound(err)
	}
	log.Info().Str("id", id.String()).Msg("QA entry updated")
	return nil
}

// Delete removes an entry
func (s *Service) Delete(ctx context.Context, id store.ID) error {
	if id <= 0 {
		return apperr.Params("")
	}
	if err := s.store.DeleteQa(ctx, id); err != nil {
		return mapNotFound(err)
	}
	log.Info().Str("id", id.String()).Msg("QA entry deleted")
	return nil
}

// PickHot returns between 1 and maxHot random hot entries, or none when
// nothing is marked hot.
func (s *Service) PickHot(ctx context.Context, rng *rand.Rand) ([]store.QaInfo, error) {
	hot, err := s.store.ListHotQa(ctx)
	if err != nil {
		return nil, err
	}
	if len(hot) == 0 {
		return nil, nil
	}

	n := min(rng.IntN(s.maxHot)+1, len(hot))
	picked := make([]store.QaInfo, len(hot))
	copy(picked, hot)
	rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	return picked[:n], nil
}

func mapNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("")
	}
	return err
}
