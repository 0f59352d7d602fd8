package models

import (
	"encoding/json"
	"time"
)

type CourseCreateRequest struct {
	Title            string      `json:"title" validate:"required,min=3,max=200"`
	Description      string      `json:"description" validate:"max=20000"`
	ShortDescription string      `json:"short_description" validate:"max=500"`
	CategoryID       *string     `json:"category_id" validate:"omitempty,uuid"`
	Level            CourseLevel `json:"level" validate:"omitempty,course_level"`
	Language         string      `json:"language" validate:"omitempty,oneof=tr en"`
	Price            float64     `json:"price" validate:"min=0,max=100000"`
	ThumbnailURL     *string     `json:"thumbnail_url" validate:"omitempty,url"`
	DurationMinutes  int         `json:"duration_minutes" validate:"min=0"`
	IsFeatured       bool        `json:"is_featured"`
}

type CourseUpdateRequest struct {
	Title            *string      `json:"title" validate:"omitempty,min=3,max=200"`
	Description      *string      `json:"description" validate:"omitempty,max=20000"`
	ShortDescription *string      `json:"short_description" validate:"omitempty,max=500"`
	CategoryID       *string      `json:"category_id" validate:"omitempty,uuid"`
	Level            *CourseLevel `json:"level" validate:"omitempty,course_level"`
	Language         *string      `json:"language" validate:"omitempty,oneof=tr en"`
	Price            *float64     `json:"price" validate:"omitempty,min=0,max=100000"`
	ThumbnailURL     *string      `json:"thumbnail_url" validate:"omitempty,url"`
	DurationMinutes  *int         `json:"duration_minutes" validate:"omitempty,min=0"`
	IsFeatured       *bool        `json:"is_featured"`
}

type ModuleRequest struct {
	Title       string `json:"title" validate:"required,min=1,max=200"`
	Description string `json:"description" validate:"max=5000"`
	OrderIndex  *int   `json:"order_index" validate:"omitempty,min=0"`
}

type ReorderModulesRequest struct {
	ModuleIDs []string `json:"module_ids" validate:"required,min=1,dive,uuid"`
}

type LessonRequest struct {
	Title           string           `json:"title" validate:"required,min=1,max=200"`
	Content         string           `json:"content"`
	VideoPath       *string          `json:"video_path" validate:"omitempty,max=500"`
	DurationMinutes int              `json:"duration_minutes" validate:"min=0"`
	OrderIndex      *int             `json:"order_index" validate:"omitempty,min=0"`
	IsPreview       bool             `json:"is_preview"`
	Resources       []LessonResource `json:"resources" validate:"omitempty,dive"`
}

// CourseListParams are the catalog filters accepted on GET /courses
type CourseListParams struct {
	Category string   `form:"category"`
	Level    string   `form:"level" validate:"omitempty,course_level"`
	Language string   `form:"language"`
	Price    string   `form:"price" validate:"omitempty,oneof=free paid"`
	MinPrice *float64 `form:"min_price" validate:"omitempty,min=0"`
	MaxPrice *float64 `form:"max_price" validate:"omitempty,min=0"`
	Search   string   `form:"search" validate:"max=100"`
	Featured *bool    `form:"featured"`
	Sort     string   `form:"sort" validate:"omitempty,oneof=newest popular rating price_asc price_desc"`
	Page     int      `form:"page"`
	Size     int      `form:"size"`

	// Set by the service, never bound from the query
	Status       CourseStatus `form:"-"`
	InstructorID string       `form:"-"`
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 50
)

// Normalize clamps paging to sane bounds
func (p *CourseListParams) Normalize() {
	p.Page, p.Size = NormalizePage(p.Page, p.Size)
	if p.Sort == "" {
		p.Sort = "newest"
	}
}

func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

type ReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

type QuizCreateRequest struct {
	LessonID         *string `json:"lesson_id" validate:"omitempty,uuid"`
	Title            string  `json:"title" validate:"required,min=1,max=200"`
	Description      string  `json:"description" validate:"max=5000"`
	PassingScore     int     `json:"passing_score" validate:"min=0,max=100"`
	TimeLimitMinutes int     `json:"time_limit_minutes" validate:"min=0,max=600"`
	MaxAttempts      int     `json:"max_attempts" validate:"min=0,max=100"`
	ShuffleQuestions bool    `json:"shuffle_questions"`
}

type QuestionCreateRequest struct {
	Type          QuestionType    `json:"type" validate:"required,question_type"`
	Text          string          `json:"text" validate:"required,min=1"`
	Options       []QuizOption    `json:"options" validate:"omitempty,dive"`
	CorrectAnswer json.RawMessage `json:"correct_answer" validate:"required"`
	Points        int             `json:"points" validate:"omitempty,min=1,max=100"`
	Explanation   string          `json:"explanation"`
	OrderIndex    int             `json:"order_index" validate:"min=0"`
}

type SubmitQuizRequest struct {
	// Answers maps question id to the submitted answer
	Answers   map[string]json.RawMessage `json:"answers" validate:"required"`
	StartedAt time.Time                  `json:"started_at" validate:"required"`
}

type UpdatePositionRequest struct {
	PositionSeconds int `json:"position_seconds" validate:"min=0"`
	WatchedSeconds  int `json:"watched_seconds" validate:"min=0,max=86400"`
}

type CoursePaymentRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

type RefundRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type MFACodeRequest struct {
	Code string `json:"code" validate:"required,mfa_code"`
}

type MFACompleteRequest struct {
	MFAToken string `json:"mfa_token" validate:"required"`
	Code     string `json:"code" validate:"required,mfa_code"`
}

type UpdateRoleRequest struct {
	Role UserRole `json:"role" validate:"required,user_role"`
}

type UserListParams struct {
	Search string `form:"search"`
	Role   string `form:"role" validate:"omitempty,user_role"`
	Page   int    `form:"page"`
	Size   int    `form:"size"`
}

// PaginatedResponse is the data payload of every paged listing
type PaginatedResponse struct {
	Items      interface{} `json:"items"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Size       int         `json:"size"`
	TotalPages int         `json:"total_pages"`
}

func NewPaginatedResponse(items interface{}, total int64, page, size int) *PaginatedResponse {
	pages := 0
	if size > 0 {
		pages = int((total + int64(size) - 1) / int64(size))
	}
	return &PaginatedResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		Size:       size,
		TotalPages: pages,
	}
}
