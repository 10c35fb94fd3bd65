// Package service implements the document mutation operations. Every
// operation is one read-modify-write of a whole renku document: load by id,
// apply the change, refresh updatedAt, replace. Mutations of the same
// document are serialized by a per-document lock, so two writers cannot
// silently overwrite each other's changes.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2314069/renku-app/db"
	"github.com/2314069/renku-app/models"
	"github.com/2314069/renku-app/verse"
)

// ListLimit caps how many documents a listing returns.
const ListLimit = 100

// Placeholders used when the caller sends blanks, matching what the
// original clients expect.
const (
	defaultTitle = "無題"
	defaultName  = "名無し"
)

var (
	ErrRenkuNotFound       = errors.New("renku not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrVerseNotFound       = errors.New("verse not found")
)

// Store is the keyed document store the service persists through. db.Store
// implements it against Mongo; tests use an in-memory implementation.
type Store interface {
	Insert(ctx context.Context, r *models.Renku) error
	Get(ctx context.Context, id string) (*models.Renku, error)
	List(ctx context.Context, limit int64) ([]models.Renku, error)
	Replace(ctx context.Context, id string, r *models.Renku) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(store Store) *Service {
	return &Service{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// lock returns the mutex serializing mutations of one document. Keys are
// canonical ids so both id encodings hit the same lock. Entries are never
// evicted; one idle mutex per document seen is an acceptable cost.
func (s *Service) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := db.CanonicalID(id)
	m, ok := s.locks[key]
	if !ok {
		m = &sync.Mutex{}
		s.locks[key] = m
	}
	return m
}

func newParticipantID() string { return "p_" + uuid.NewString() }
func newVerseID() string       { return "v_" + uuid.NewString() }

// CreateRenku starts a new composition with the creator as its only
// participant and an empty verse sequence.
func (s *Service) CreateRenku(ctx context.Context, title, participantName, role string) (*models.Renku, error) {
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	if strings.TrimSpace(participantName) == "" {
		participantName = defaultName
	}

	now := time.Now()
	r := &models.Renku{
		Title: title,
		Participants: []models.Participant{{
			ID:       newParticipantID(),
			Name:     participantName,
			JoinedAt: now,
			Role:     role,
		}},
		Verses:      []models.Verse{},
		CurrentTurn: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.Insert(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) GetRenku(ctx context.Context, id string) (*models.Renku, error) {
	r, err := s.store.Get(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrRenkuNotFound
	}
	return r, err
}

func (s *Service) ListRenku(ctx context.Context) ([]models.Renku, error) {
	return s.store.List(ctx, ListLimit)
}

func (s *Service) replace(ctx context.Context, id string, r *models.Renku) error {
	err := s.store.Replace(ctx, id, r)
	if errors.Is(err, db.ErrNotFound) {
		return ErrRenkuNotFound
	}
	return err
}

// AddVerse validates the candidate line, derives its required form from the
// current sequence and appends it. The author's display name is copied onto
// the verse as it stands right now; later renames rewrite these copies via
// UpdateParticipantName. The turn index advances by one, wrapping over the
// participant list.
func (s *Service) AddVerse(ctx context.Context, renkuID, participantID, text, seasonWord string) (*models.Verse, *models.Renku, error) {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	r, err := s.GetRenku(ctx, renkuID)
	if err != nil {
		return nil, nil, err
	}

	var author *models.Participant
	for i := range r.Participants {
		if r.Participants[i].ID == participantID {
			author = &r.Participants[i]
			break
		}
	}
	if author == nil {
		return nil, nil, ErrParticipantNotFound
	}

	verseType := verse.NextType(r.Verses)
	if err := verse.ValidateLine(text, verseType); err != nil {
		return nil, nil, err
	}
	if err := verse.CheckTaboo(r.Verses, text, len(r.Verses) == 0); err != nil {
		return nil, nil, err
	}
	if seasonWord == "" {
		if w, ok := verse.DetectSeasonWord(text); ok {
			seasonWord = w
		}
	}

	v := models.Verse{
		ID:              newVerseID(),
		ParticipantID:   participantID,
		ParticipantName: author.Name,
		Text:            text,
		Type:            verseType,
		Order:           len(r.Verses) + 1,
		CreatedAt:       time.Now(),
		SeasonWord:      seasonWord,
	}
	r.Verses = append(r.Verses, v)
	r.CurrentTurn = (r.CurrentTurn + 1) % len(r.Participants)
	r.UpdatedAt = time.Now()

	if err := s.replace(ctx, renkuID, r); err != nil {
		return nil, nil, err
	}
	return &v, r, nil
}

// AddParticipant appends a participant. The turn index and the verse
// sequence are untouched; the newcomer simply enters the rotation.
func (s *Service) AddParticipant(ctx context.Context, renkuID, name, role string) (*models.Participant, *models.Renku, error) {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	r, err := s.GetRenku(ctx, renkuID)
	if err != nil {
		return nil, nil, err
	}

	p := models.Participant{
		ID:       newParticipantID(),
		Name:     name,
		JoinedAt: time.Now(),
		Role:     role,
	}
	r.Participants = append(r.Participants, p)
	r.UpdatedAt = time.Now()

	if err := s.replace(ctx, renkuID, r); err != nil {
		return nil, nil, err
	}
	return &p, r, nil
}

// UpdateParticipantName renames a participant and repairs the denormalized
// author-name copy on every verse they wrote. Verses by other participants
// keep their copies.
func (s *Service) UpdateParticipantName(ctx context.Context, renkuID, participantID, name string) (*models.Participant, *models.Renku, error) {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	r, err := s.GetRenku(ctx, renkuID)
	if err != nil {
		return nil, nil, err
	}

	var p *models.Participant
	for i := range r.Participants {
		if r.Participants[i].ID == participantID {
			p = &r.Participants[i]
			break
		}
	}
	if p == nil {
		return nil, nil, ErrParticipantNotFound
	}

	p.Name = name
	for i := range r.Verses {
		if r.Verses[i].ParticipantID == participantID {
			r.Verses[i].ParticipantName = name
		}
	}
	r.UpdatedAt = time.Now()

	if err := s.replace(ctx, renkuID, r); err != nil {
		return nil, nil, err
	}
	return p, r, nil
}

// VerseUpdate carries the optional fields of an UpdateVerse call; nil
// pointers leave the stored value alone.
type VerseUpdate struct {
	Text            *string
	SeasonWord      *string
	ParticipantName *string
}

// UpdateVerse applies a partial edit to one verse. Form tag and sequence
// position are never touched here.
func (s *Service) UpdateVerse(ctx context.Context, renkuID, verseID string, upd VerseUpdate) (*models.Verse, *models.Renku, error) {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	r, err := s.GetRenku(ctx, renkuID)
	if err != nil {
		return nil, nil, err
	}

	var v *models.Verse
	for i := range r.Verses {
		if r.Verses[i].ID == verseID {
			v = &r.Verses[i]
			break
		}
	}
	if v == nil {
		return nil, nil, ErrVerseNotFound
	}

	if upd.Text != nil {
		v.Text = *upd.Text
	}
	if upd.SeasonWord != nil {
		v.SeasonWord = *upd.SeasonWord
	}
	if upd.ParticipantName != nil {
		v.ParticipantName = *upd.ParticipantName
	}
	r.UpdatedAt = time.Now()

	if err := s.replace(ctx, renkuID, r); err != nil {
		return nil, nil, err
	}
	return v, r, nil
}

// UpdateRenkuTitle retitles the document. A blank title is a no-op that
// still returns the current snapshot.
func (s *Service) UpdateRenkuTitle(ctx context.Context, renkuID, title string) (*models.Renku, error) {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	r, err := s.GetRenku(ctx, renkuID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(title) == "" {
		return r, nil
	}

	r.Title = title
	r.UpdatedAt = time.Now()

	if err := s.replace(ctx, renkuID, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) DeleteRenku(ctx context.Context, renkuID string) error {
	l := s.lock(renkuID)
	l.Lock()
	defer l.Unlock()

	err := s.store.Delete(ctx, renkuID)
	if errors.Is(err, db.ErrNotFound) {
		return ErrRenkuNotFound
	}
	return err
}
