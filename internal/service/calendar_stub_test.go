package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	"github.com/noah-isme/tutor-schedule-api/pkg/database"
)

// memDB is an in-memory calendar. memRunner snapshots it per unit of work and restores the
// snapshot when the unit fails, so tests observe rollback the way Postgres would apply it.
type memDB struct {
	mu           sync.Mutex
	entries      []models.ScheduleEntry
	lessons      map[string]models.Lesson
	participants map[string][]string
	blocks       map[string]models.AvailabilityBlock
	requests     map[string]models.RescheduleRequest
}

func newMemDB() *memDB {
	return &memDB{
		lessons:      map[string]models.Lesson{},
		participants: map[string][]string{},
		blocks:       map[string]models.AvailabilityBlock{},
		requests:     map[string]models.RescheduleRequest{},
	}
}

type memState struct {
	entries      []models.ScheduleEntry
	lessons      map[string]models.Lesson
	participants map[string][]string
	blocks       map[string]models.AvailabilityBlock
	requests     map[string]models.RescheduleRequest
}

func (db *memDB) snapshot() memState {
	db.mu.Lock()
	defer db.mu.Unlock()
	state := memState{
		entries:      append([]models.ScheduleEntry(nil), db.entries...),
		lessons:      map[string]models.Lesson{},
		participants: map[string][]string{},
		blocks:       map[string]models.AvailabilityBlock{},
		requests:     map[string]models.RescheduleRequest{},
	}
	for k, v := range db.lessons {
		state.lessons[k] = v
	}
	for k, v := range db.participants {
		state.participants[k] = append([]string(nil), v...)
	}
	for k, v := range db.blocks {
		state.blocks[k] = v
	}
	for k, v := range db.requests {
		state.requests[k] = v
	}
	return state
}

func (db *memDB) restore(state memState) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entries = state.entries
	db.lessons = state.lessons
	db.participants = state.participants
	db.blocks = state.blocks
	db.requests = state.requests
}

func (db *memDB) liveEntries(ownerID string) []models.ScheduleEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.ScheduleEntry
	for _, e := range db.entries {
		if e.OwnerID == ownerID && e.Active() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (db *memDB) seedEntry(ownerID string, start, end time.Time, kind models.EntryKind) models.ScheduleEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	entry := models.ScheduleEntry{
		ID:      uuidFor(len(db.entries) + 1),
		OwnerID: ownerID,
		StartAt: start.UTC(),
		EndAt:   end.UTC(),
		Kind:    kind,
	}
	db.entries = append(db.entries, entry)
	return entry
}

func (db *memDB) seedLesson(ownerID, sourceID string, start, end time.Time, participants ...string) (models.Lesson, models.ScheduleEntry) {
	lesson := models.Lesson{ID: uuidFor(1000 + len(db.lessons)), SourceID: sourceID, OwnerID: ownerID}
	entry := db.seedEntry(ownerID, start, end, models.EntryKindLesson)
	db.mu.Lock()
	defer db.mu.Unlock()
	db.lessons[lesson.ID] = lesson
	for i := range db.entries {
		if db.entries[i].ID == entry.ID {
			db.entries[i].LessonRef = &lesson.ID
			entry = db.entries[i]
		}
	}
	db.participants[sourceID] = append(db.participants[sourceID], participants...)
	return lesson, entry
}

func (db *memDB) entryByID(id string) models.ScheduleEntry {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, e := range db.entries {
		if e.ID == id {
			return e
		}
	}
	return models.ScheduleEntry{}
}

func uuidFor(n int) string {
	return "00000000-0000-4000-8000-" + pad12(n)
}

func pad12(n int) string {
	digits := []byte("000000000000")
	for i := len(digits) - 1; i >= 0 && n > 0; i-- {
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits)
}

type memRunner struct {
	db    *memDB
	calls int
}

func (r *memRunner) RunAtomic(ctx context.Context, fn database.UnitOfWork) error {
	r.calls++
	state := r.db.snapshot()
	if err := fn(ctx, nil); err != nil {
		r.db.restore(state)
		return err
	}
	return nil
}

type stubLocker struct {
	keys []string
	err  error
}

func (l *stubLocker) Lock(ctx context.Context, exec sqlx.ExtContext, keys ...string) error {
	l.keys = append(l.keys, keys...)
	return l.err
}

type memEntries struct {
	db        *memDB
	listCalls int
	insertErr error
}

func (m *memEntries) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.ScheduleEntry, error) {
	m.listCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.ScheduleEntry
	for _, e := range m.db.liveEntries(ownerID) {
		if e.Interval().Overlaps(interval) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memEntries) InsertBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ScheduleEntry) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, entry := range entries {
		for _, existing := range m.db.liveEntries(entry.OwnerID) {
			if existing.Interval().Overlaps(entry.Interval()) {
				return &pq.Error{Code: "23P01", Message: "conflicting key value violates exclusion constraint"}
			}
		}
		m.db.mu.Lock()
		m.db.entries = append(m.db.entries, entry)
		m.db.mu.Unlock()
	}
	return nil
}

func (m *memEntries) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.ScheduleEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.entries {
		if e.ID == id && e.Active() {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memEntries) FindActiveByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (*models.ScheduleEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, e := range m.db.entries {
		if e.LessonRef != nil && *e.LessonRef == lessonID && e.Active() {
			found := e
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memEntries) UpdateInterval(ctx context.Context, exec sqlx.ExtContext, id string, interval models.Interval) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for i := range m.db.entries {
		if m.db.entries[i].ID == id && m.db.entries[i].Active() {
			m.db.entries[i].StartAt = interval.Start
			m.db.entries[i].EndAt = interval.End
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m *memEntries) SoftDeleteByBlock(ctx context.Context, exec sqlx.ExtContext, blockID string) (int64, error) {
	return m.softDelete(func(e models.ScheduleEntry) bool { return e.BlockRef != nil && *e.BlockRef == blockID }), nil
}

func (m *memEntries) SoftDeleteByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) (int64, error) {
	return m.softDelete(func(e models.ScheduleEntry) bool { return e.LessonRef != nil && *e.LessonRef == lessonID }), nil
}

func (m *memEntries) softDelete(match func(models.ScheduleEntry) bool) int64 {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	now := time.Now().UTC()
	var count int64
	for i := range m.db.entries {
		if m.db.entries[i].Active() && match(m.db.entries[i]) {
			m.db.entries[i].DeletedAt = &now
			count++
		}
	}
	return count
}

type memLessons struct {
	db *memDB
}

func (m *memLessons) InsertBatch(ctx context.Context, exec sqlx.ExtContext, lessons []models.Lesson) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, l := range lessons {
		m.db.lessons[l.ID] = l
	}
	return nil
}

func (m *memLessons) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Lesson, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	l, ok := m.db.lessons[id]
	if !ok || l.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &l, nil
}

func (m *memLessons) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	l, ok := m.db.lessons[id]
	if !ok || l.DeletedAt != nil {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	l.DeletedAt = &now
	m.db.lessons[id] = l
	return nil
}

func (m *memLessons) AddParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string, participantIDs []string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, id := range participantIDs {
		if !contains(m.db.participants[sourceID], id) {
			m.db.participants[sourceID] = append(m.db.participants[sourceID], id)
		}
	}
	return nil
}

func (m *memLessons) IsParticipant(ctx context.Context, exec sqlx.ExtContext, sourceID, profileID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return contains(m.db.participants[sourceID], profileID), nil
}

func (m *memLessons) ListParticipants(ctx context.Context, exec sqlx.ExtContext, sourceID string) ([]string, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	ids := append([]string(nil), m.db.participants[sourceID]...)
	sort.Strings(ids)
	return ids, nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

type memBlocks struct {
	db *memDB
}

func (m *memBlocks) Create(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	m.db.blocks[block.ID] = *block
	return nil
}

func (m *memBlocks) FindOwned(ctx context.Context, exec sqlx.ExtContext, id, ownerID string) (*models.AvailabilityBlock, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.blocks[id]
	if !ok || b.OwnerID != ownerID || b.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &b, nil
}

func (m *memBlocks) UpdateDetails(ctx context.Context, exec sqlx.ExtContext, block *models.AvailabilityBlock) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if _, ok := m.db.blocks[block.ID]; !ok {
		return sql.ErrNoRows
	}
	m.db.blocks[block.ID] = *block
	return nil
}

func (m *memBlocks) SoftDelete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	b, ok := m.db.blocks[id]
	if !ok || b.DeletedAt != nil {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	b.DeletedAt = &now
	m.db.blocks[id] = b
	return nil
}

func (m *memBlocks) ListWithEntriesIn(ctx context.Context, exec sqlx.ExtContext, ownerID string, interval models.Interval) ([]models.AvailabilityBlock, error) {
	seen := map[string]bool{}
	var out []models.AvailabilityBlock
	for _, e := range m.db.liveEntries(ownerID) {
		if e.BlockRef == nil || seen[*e.BlockRef] || !e.Interval().Overlaps(interval) {
			continue
		}
		seen[*e.BlockRef] = true
		m.db.mu.Lock()
		b, ok := m.db.blocks[*e.BlockRef]
		m.db.mu.Unlock()
		if ok && b.DeletedAt == nil {
			out = append(out, b)
		}
	}
	return out, nil
}

type memRequests struct {
	db *memDB
}

func (m *memRequests) Create(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, existing := range m.db.requests {
		if existing.LessonID == req.LessonID && existing.Status == models.RescheduleStatusPending {
			return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
		}
	}
	m.db.requests[req.ID] = *req
	return nil
}

func (m *memRequests) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RescheduleRequest, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	r, ok := m.db.requests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (m *memRequests) HasPending(ctx context.Context, exec sqlx.ExtContext, lessonID string) (bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	for _, r := range m.db.requests {
		if r.LessonID == lessonID && r.Status == models.RescheduleStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRequests) Decide(ctx context.Context, exec sqlx.ExtContext, req *models.RescheduleRequest) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	stored, ok := m.db.requests[req.ID]
	if !ok || stored.Status != models.RescheduleStatusPending {
		return sql.ErrNoRows
	}
	m.db.requests[req.ID] = *req
	return nil
}

func (m *memRequests) ListByLesson(ctx context.Context, exec sqlx.ExtContext, lessonID string) ([]models.RescheduleRequest, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.RescheduleRequest
	for _, r := range m.db.requests {
		if r.LessonID == lessonID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

type recordingNotifier struct {
	sent []models.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification models.Notification) error {
	n.sent = append(n.sent, notification)
	return nil
}

// mustDate parses a YYYY-MM-DD HH:MM wall time in loc.
func mustDate(loc *time.Location, value string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		panic(err)
	}
	return t
}
