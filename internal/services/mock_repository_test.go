package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/7p-education/platform/internal/models"
	"github.com/7p-education/platform/internal/repositories"
)

// MockRepository is an in-memory Repository for service tests. Sub-repositories
// embed their interface so that calling an unimplemented method panics loudly.
type MockRepository struct {
	users         *mockUsers
	courses       *mockCourses
	modules       *mockModules
	lessons       *mockLessons
	reviews       *mockReviews
	enrollments   *mockEnrollments
	progress      *mockProgress
	certificates  *mockCertificates
	quizzes       *mockQuizzes
	attempts      *mockQuizAttempts
	payments      *mockPayments
	subscriptions *mockSubscriptions
	mfa           *mockMFA
	dashboard     repositories.DashboardRepository
}

func newMockRepository() *MockRepository {
	m := &MockRepository{
		users:         &mockUsers{items: map[string]*models.User{}},
		courses:       &mockCourses{items: map[string]*models.Course{}, counts: map[string]int{}},
		modules:       &mockModules{items: map[string]*models.CourseModule{}},
		lessons:       &mockLessons{items: map[string]*models.CourseLesson{}},
		reviews:       &mockReviews{items: map[string]*models.CourseReview{}},
		enrollments:   &mockEnrollments{items: map[string]*models.Enrollment{}},
		progress:      &mockProgress{items: map[string]*models.LessonProgress{}},
		certificates:  &mockCertificates{items: map[string]*models.Certificate{}},
		quizzes:       &mockQuizzes{items: map[string]*models.Quiz{}},
		attempts:      &mockQuizAttempts{},
		payments:      &mockPayments{items: map[string]*models.Payment{}},
		subscriptions: &mockSubscriptions{items: map[string]*models.Subscription{}},
		mfa:           &mockMFA{secrets: map[string]*models.UserMFASecret{}},
	}
	m.courses.modules, m.courses.lessons = m.modules, m.lessons
	return m
}

func (m *MockRepository) User() repositories.UserRepository                 { return m.users }
func (m *MockRepository) Course() repositories.CourseRepository             { return m.courses }
func (m *MockRepository) Module() repositories.ModuleRepository             { return m.modules }
func (m *MockRepository) Lesson() repositories.LessonRepository             { return m.lessons }
func (m *MockRepository) Review() repositories.ReviewRepository             { return m.reviews }
func (m *MockRepository) Enrollment() repositories.EnrollmentRepository     { return m.enrollments }
func (m *MockRepository) Progress() repositories.ProgressRepository         { return m.progress }
func (m *MockRepository) Certificate() repositories.CertificateRepository   { return m.certificates }
func (m *MockRepository) Quiz() repositories.QuizRepository                 { return m.quizzes }
func (m *MockRepository) QuizAttempt() repositories.QuizAttemptRepository   { return m.attempts }
func (m *MockRepository) Payment() repositories.PaymentRepository           { return m.payments }
func (m *MockRepository) Subscription() repositories.SubscriptionRepository { return m.subscriptions }
func (m *MockRepository) MFA() repositories.MFARepository                   { return m.mfa }
func (m *MockRepository) Dashboard() repositories.DashboardRepository       { return m.dashboard }
func (m *MockRepository) WithTransaction(ctx context.Context, fn func(repositories.Repository) error) error {
	return fn(m)
}
func (m *MockRepository) Ping(ctx context.Context) error { return nil }
func (m *MockRepository) Close() error                   { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ===== USERS =====

type mockUsers struct {
	repositories.UserRepository
	mu    sync.Mutex
	items map[string]*models.User
}

func (r *mockUsers) add(u *models.User) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[u.ID] = u
	return u
}

func (r *mockUsers) Create(ctx context.Context, tx *gorm.DB, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.Email == user.Email {
			return repositories.ErrDuplicate
		}
	}
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	r.items[user.ID] = user
	return nil
}

func (r *mockUsers) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.items[id]; ok {
		return u, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockUsers) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockUsers) GetByGoogleID(ctx context.Context, tx *gorm.DB, googleID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.items {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return u, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockUsers) Update(ctx context.Context, tx *gorm.DB, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[user.ID] = user
	return nil
}

func (r *mockUsers) TouchLogin(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.items[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

// ===== COURSES =====

type mockCourses struct {
	repositories.CourseRepository
	mu     sync.Mutex
	items  map[string]*models.Course
	counts map[string]int
	seq    int

	// calls records count updates and cache invalidations in order
	calls   []string
	deleted []string

	modules *mockModules
	lessons *mockLessons
}

func (r *mockCourses) add(c *models.Course) *models.Course {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = c
	return c
}

func (r *mockCourses) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.items[id]; ok {
		return c, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockCourses) IncrementEnrollmentCount(ctx context.Context, tx *gorm.DB, courseID string, delta int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[courseID] += delta
	r.calls = append(r.calls, fmt.Sprintf("count:%s:%+d", courseID, delta))
	return nil
}

func (r *mockCourses) InvalidateCache(ctx context.Context, courseID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "invalidate:"+courseID)
}

func (r *mockCourses) Create(ctx context.Context, tx *gorm.DB, c *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.Slug == c.Slug {
			return repositories.ErrDuplicate
		}
	}
	if c.ID == "" {
		r.seq++
		c.ID = fmt.Sprintf("course-%d", r.seq)
	}
	r.items[c.ID] = c
	return nil
}

func (r *mockCourses) GetBySlug(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// GetWithContent returns a copy so that callers may strip lesson content freely
func (r *mockCourses) GetWithContent(ctx context.Context, tx *gorm.DB, slug string) (*models.Course, error) {
	course, err := r.GetBySlug(ctx, tx, slug)
	if err != nil {
		return nil, err
	}
	out := *course
	out.Modules = nil
	modules, _ := r.modules.ListByCourse(ctx, tx, course.ID)
	for _, m := range modules {
		module := *m
		lessons, _ := r.lessons.listByModule(m.ID)
		for _, l := range lessons {
			module.Lessons = append(module.Lessons, *l)
		}
		out.Modules = append(out.Modules, module)
	}
	return &out, nil
}

func (r *mockCourses) Update(ctx context.Context, tx *gorm.DB, c *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[c.ID] = c
	return nil
}

func (r *mockCourses) Delete(ctx context.Context, tx *gorm.DB, c *models.Course) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, c.ID)
	r.deleted = append(r.deleted, c.ID)
	return nil
}

func (r *mockCourses) SlugExists(ctx context.Context, tx *gorm.DB, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.items {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockCourses) UpdateRating(ctx context.Context, tx *gorm.DB, courseID string, avg float64, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[courseID]
	if !ok {
		return repositories.ErrNotFound
	}
	c.RatingAvg, c.RatingCount = avg, count
	r.calls = append(r.calls, "rating:"+courseID)
	return nil
}

// ===== MODULES AND LESSONS =====

type mockModules struct {
	repositories.ModuleRepository
	mu    sync.Mutex
	items map[string]*models.CourseModule
	seq   int
}

func (r *mockModules) Create(ctx context.Context, tx *gorm.DB, m *models.CourseModule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		r.seq++
		m.ID = fmt.Sprintf("mod-%d", r.seq)
	}
	r.items[m.ID] = m
	return nil
}

func (r *mockModules) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.items[id]; ok {
		return m, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockModules) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseModule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CourseModule
	for _, m := range r.items {
		if m.CourseID == courseID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderIndex < out[j].OrderIndex })
	return out, nil
}

func (r *mockModules) NextOrderIndex(ctx context.Context, tx *gorm.DB, courseID string) (int, error) {
	modules, _ := r.ListByCourse(ctx, tx, courseID)
	return len(modules), nil
}

type mockLessons struct {
	repositories.LessonRepository
	mu    sync.Mutex
	items map[string]*models.CourseLesson
	seq   int
}

func (r *mockLessons) Create(ctx context.Context, tx *gorm.DB, l *models.CourseLesson) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == "" {
		r.seq++
		l.ID = fmt.Sprintf("lesson-%d", r.seq)
	}
	r.items[l.ID] = l
	return nil
}

func (r *mockLessons) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.CourseLesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.items[id]; ok {
		return l, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockLessons) listWhere(match func(*models.CourseLesson) bool) ([]*models.CourseLesson, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.CourseLesson
	for _, l := range r.items {
		if match(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderIndex != out[j].OrderIndex {
			return out[i].OrderIndex < out[j].OrderIndex
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *mockLessons) listByModule(moduleID string) ([]*models.CourseLesson, error) {
	return r.listWhere(func(l *models.CourseLesson) bool { return l.ModuleID == moduleID })
}

func (r *mockLessons) ListByCourse(ctx context.Context, tx *gorm.DB, courseID string) ([]*models.CourseLesson, error) {
	return r.listWhere(func(l *models.CourseLesson) bool { return l.CourseID == courseID })
}

func (r *mockLessons) CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error) {
	lessons, _ := r.ListByCourse(ctx, tx, courseID)
	return int64(len(lessons)), nil
}

func (r *mockLessons) NextOrderIndex(ctx context.Context, tx *gorm.DB, moduleID string) (int, error) {
	lessons, _ := r.listByModule(moduleID)
	return len(lessons), nil
}

// ===== REVIEWS =====

type mockReviews struct {
	repositories.ReviewRepository
	mu    sync.Mutex
	items map[string]*models.CourseReview
	seq   int
}

func (r *mockReviews) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.CourseReview, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv, ok := r.items[enrollmentKey(userID, courseID)]; ok {
		return rv, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockReviews) Save(ctx context.Context, tx *gorm.DB, rv *models.CourseReview) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rv.ID == "" {
		r.seq++
		rv.ID = fmt.Sprintf("review-%d", r.seq)
	}
	r.items[enrollmentKey(rv.UserID, rv.CourseID)] = rv
	return nil
}

func (r *mockReviews) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rv := range r.items {
		if rv.ID == id {
			delete(r.items, key)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (r *mockReviews) Aggregate(ctx context.Context, tx *gorm.DB, courseID string) (float64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum, n int64
	for _, rv := range r.items {
		if rv.CourseID == courseID && rv.IsApproved {
			sum += int64(rv.Rating)
			n++
		}
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(sum) / float64(n), n, nil
}

// ===== ENROLLMENTS =====

type mockEnrollments struct {
	repositories.EnrollmentRepository
	mu    sync.Mutex
	items map[string]*models.Enrollment
}

func enrollmentKey(userID, courseID string) string { return userID + "/" + courseID }

func (r *mockEnrollments) Create(ctx context.Context, tx *gorm.DB, e *models.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := enrollmentKey(e.UserID, e.CourseID)
	if _, ok := r.items[key]; ok {
		return repositories.ErrDuplicate
	}
	if e.ID == "" {
		e.ID = "enr-" + key
	}
	r.items[key] = e
	return nil
}

func (r *mockEnrollments) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Enrollment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.items[enrollmentKey(userID, courseID)]; ok {
		return e, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockEnrollments) Update(ctx context.Context, tx *gorm.DB, e *models.Enrollment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[enrollmentKey(e.UserID, e.CourseID)] = e
	return nil
}

func (r *mockEnrollments) CountByCourse(ctx context.Context, tx *gorm.DB, courseID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, e := range r.items {
		if e.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (r *mockEnrollments) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	perCourse := map[string]int64{}
	for _, e := range r.items {
		if e.Status == models.EnrollmentActive && e.ExpiresAt != nil && e.ExpiresAt.Before(now) {
			e.Status = models.EnrollmentExpired
			perCourse[e.CourseID]++
		}
	}
	return perCourse, nil
}

// ===== PROGRESS AND CERTIFICATES =====

type mockProgress struct {
	repositories.ProgressRepository
	mu    sync.Mutex
	items map[string]*models.LessonProgress
	saves int
}

func (r *mockProgress) Get(ctx context.Context, tx *gorm.DB, userID, lessonID string) (*models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.items[enrollmentKey(userID, lessonID)]; ok {
		return p, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockProgress) Save(ctx context.Context, tx *gorm.DB, p *models.LessonProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = "progress-" + enrollmentKey(p.UserID, p.LessonID)
	}
	r.items[enrollmentKey(p.UserID, p.LessonID)] = p
	r.saves++
	return nil
}

func (r *mockProgress) ListByCourse(ctx context.Context, tx *gorm.DB, userID, courseID string) ([]*models.LessonProgress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.LessonProgress
	for _, p := range r.items {
		if p.UserID == userID && p.CourseID == courseID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *mockProgress) CountCompleted(ctx context.Context, tx *gorm.DB, userID, courseID string) (int64, error) {
	rows, _ := r.ListByCourse(ctx, tx, userID, courseID)
	var n int64
	for _, p := range rows {
		if p.Completed {
			n++
		}
	}
	return n, nil
}

type mockCertificates struct {
	repositories.CertificateRepository
	mu    sync.Mutex
	items map[string]*models.Certificate
}

func (r *mockCertificates) Create(ctx context.Context, tx *gorm.DB, c *models.Certificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := enrollmentKey(c.UserID, c.CourseID)
	if _, ok := r.items[key]; ok {
		return repositories.ErrDuplicate
	}
	if c.ID == "" {
		c.ID = "cert-" + key
	}
	r.items[key] = c
	return nil
}

func (r *mockCertificates) Get(ctx context.Context, tx *gorm.DB, userID, courseID string) (*models.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.items[enrollmentKey(userID, courseID)]; ok {
		return c, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockCertificates) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Certificate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Certificate
	for _, c := range r.items {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

// ===== QUIZZES =====

type mockQuizzes struct {
	repositories.QuizRepository
	mu    sync.Mutex
	items map[string]*models.Quiz
}

func (r *mockQuizzes) add(q *models.Quiz) *models.Quiz {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[q.ID] = q
	return q
}

func (r *mockQuizzes) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *q
	out.Questions = nil
	return &out, nil
}

func (r *mockQuizzes) GetWithQuestions(ctx context.Context, tx *gorm.DB, id string) (*models.Quiz, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.items[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	out := *q
	out.Questions = append([]models.QuizQuestion(nil), q.Questions...)
	return &out, nil
}

type mockQuizAttempts struct {
	repositories.QuizAttemptRepository
	mu    sync.Mutex
	items []*models.QuizAttempt

	// beforeCreate runs ahead of the unique check, letting tests slip in a competing attempt
	beforeCreate func(attempt *models.QuizAttempt)
}

func (r *mockQuizAttempts) insert(a *models.QuizAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.QuizID == a.QuizID && existing.UserID == a.UserID && existing.AttemptNumber == a.AttemptNumber {
			return repositories.ErrDuplicate
		}
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("attempt-%d", len(r.items)+1)
	}
	r.items = append(r.items, a)
	return nil
}

func (r *mockQuizAttempts) Create(ctx context.Context, tx *gorm.DB, a *models.QuizAttempt) error {
	if hook := r.beforeCreate; hook != nil {
		r.beforeCreate = nil
		hook(a)
	}
	return r.insert(a)
}

func (r *mockQuizAttempts) CountByUser(ctx context.Context, tx *gorm.DB, quizID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.items {
		if a.QuizID == quizID && a.UserID == userID {
			n++
		}
	}
	return n, nil
}

// ===== PAYMENTS =====

type mockPayments struct {
	repositories.PaymentRepository
	mu    sync.Mutex
	items map[string]*models.Payment
	seq   int
}

func (r *mockPayments) Create(ctx context.Context, tx *gorm.DB, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		r.seq++
		p.ID = fmt.Sprintf("pay-%d", r.seq)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	r.items[p.ID] = p
	return nil
}

func (r *mockPayments) GetByID(ctx context.Context, tx *gorm.DB, id string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.items[id]; ok {
		return p, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockPayments) GetByPaymentIntent(ctx context.Context, tx *gorm.DB, intentID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.StripePaymentIntentID != nil && *p.StripePaymentIntentID == intentID {
			return p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockPayments) GetByCheckoutSession(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.StripeCheckoutSessionID != nil && *p.StripeCheckoutSessionID == sessionID {
			return p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *mockPayments) Update(ctx context.Context, tx *gorm.DB, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = p
	return nil
}

func (r *mockPayments) ListByUser(ctx context.Context, tx *gorm.DB, userID string) ([]*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Payment
	for _, p := range r.items {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *mockPayments) HasSucceeded(ctx context.Context, tx *gorm.DB, userID, courseID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.items {
		if p.UserID == userID && p.CourseID == courseID && p.Status == models.PaymentSucceeded {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockPayments) FailStalePending(ctx context.Context, tx *gorm.DB, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, p := range r.items {
		if p.Status == models.PaymentPending && p.CreatedAt.Before(olderThan) {
			p.Status = models.PaymentFailed
			n++
		}
	}
	return n, nil
}

type mockSubscriptions struct {
	repositories.SubscriptionRepository
	mu    sync.Mutex
	items map[string]*models.Subscription
}

func (r *mockSubscriptions) GetByStripeID(ctx context.Context, tx *gorm.DB, stripeID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.items[stripeID]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockSubscriptions) Save(ctx context.Context, tx *gorm.DB, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[sub.StripeSubscriptionID] = sub
	return nil
}

func (r *mockSubscriptions) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.items {
		if s.Status == models.SubscriptionActive && s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.Before(now) {
			s.Status = models.SubscriptionExpired
			n++
		}
	}
	return n, nil
}

// ===== MFA =====

type mockMFA struct {
	repositories.MFARepository
	mu      sync.Mutex
	secrets map[string]*models.UserMFASecret
	codes   []*models.MFABackupCode
}

func (r *mockMFA) GetSecret(ctx context.Context, tx *gorm.DB, userID string) (*models.UserMFASecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.secrets[userID]; ok {
		return s, nil
	}
	return nil, repositories.ErrNotFound
}

func (r *mockMFA) SaveSecret(ctx context.Context, tx *gorm.DB, secret *models.UserMFASecret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.secrets[secret.UserID] = secret
	return nil
}

func (r *mockMFA) DeleteSecret(ctx context.Context, tx *gorm.DB, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.secrets, userID)
	return nil
}

func (r *mockMFA) ReplaceBackupCodes(ctx context.Context, tx *gorm.DB, userID string, hashes []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	for _, c := range r.codes {
		if c.UserID != userID {
			kept = append(kept, c)
		}
	}
	r.codes = kept
	for i, h := range hashes {
		r.codes = append(r.codes, &models.MFABackupCode{ID: fmt.Sprintf("%s-%d", userID, i), UserID: userID, CodeHash: h})
	}
	return nil
}

func (r *mockMFA) ListUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) ([]*models.MFABackupCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.MFABackupCode
	for _, c := range r.codes {
		if c.UserID == userID && c.UsedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *mockMFA) MarkBackupCodeUsed(ctx context.Context, tx *gorm.DB, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.codes {
		if c.ID == id {
			c.UsedAt = &at
		}
	}
	return nil
}

func (r *mockMFA) CountUnusedBackupCodes(ctx context.Context, tx *gorm.DB, userID string) (int64, error) {
	codes, _ := r.ListUnusedBackupCodes(ctx, tx, userID)
	return int64(len(codes)), nil
}
