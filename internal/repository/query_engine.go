package repository

import (
	"context"
	"net/url"
	"proctor_backend/internal/model"
	"proctor_backend/internal/util"
	"proctor_backend/pkg/monitoring"
	"proctor_backend/pkg/tracing"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Kind selects the record type a listing runs over.
type Kind string

const (
	KindUser          Kind = "user"
	KindExam          Kind = "exam"
	KindExamRecording Kind = "exam_recording"
	KindExamWarning   Kind = "exam_warning"
)

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 25
	MaxPageSize       = 100
)

// ListParams is what a listing request asks for. Filters holds every query
// parameter that is not a sort or page key; keys a kind does not know are
// ignored.
type ListParams struct {
	Filters    map[string]string
	OrderBy    string
	Order      string
	PageNumber int
	PageSize   int
}

var pagingKeys = map[string]bool{
	"order_by":       true,
	"order":          true,
	"page_number":    true,
	"results_length": true,
	"page_size":      true,
}

// ListParamsFromQuery reads listing parameters from a URL query. Page values
// that are not integers are left at zero and clamped later.
func ListParamsFromQuery(values url.Values) ListParams {
	p := ListParams{
		Filters: make(map[string]string),
		OrderBy: values.Get("order_by"),
		Order:   values.Get("order"),
	}
	p.PageNumber, _ = strconv.Atoi(values.Get("page_number"))
	size := values.Get("results_length")
	if size == "" {
		size = values.Get("page_size")
	}
	p.PageSize, _ = strconv.Atoi(size)

	for key, vs := range values {
		if pagingKeys[key] || len(vs) == 0 {
			continue
		}
		p.Filters[key] = vs[0]
	}
	return p
}

// Page returns the clamped page number and size.
func (p ListParams) Page() (number, size int) {
	number, size = p.PageNumber, p.PageSize
	if number < 1 {
		number = DefaultPageNumber
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return number, size
}

// WithFilter returns a copy of p with key set to value.
func (p ListParams) WithFilter(key, value string) ListParams {
	filters := make(map[string]string, len(p.Filters)+1)
	for k, v := range p.Filters {
		filters[k] = v
	}
	filters[key] = value
	p.Filters = filters
	return p
}

type PageResult[T any] struct {
	Items   []T
	HasNext bool
}

// kindSpec describes how one kind is queried: the base join, the filters it
// recognises and the columns it can be ordered by.
type kindSpec struct {
	base           func(*gorm.DB) *gorm.DB
	filters        func(*filterBuilder)
	orderable      map[string]string
	defaultOrderBy string
	primaryKey     string
}

var kindSpecs = map[Kind]kindSpec{
	KindUser: {
		base:    func(db *gorm.DB) *gorm.DB { return db.Table("users") },
		filters: userFilters,
		orderable: map[string]string{
			"user_id":    "users.user_id",
			"first_name": "users.first_name",
			"last_name":  "users.last_name",
		},
		defaultOrderBy: "user_id",
		primaryKey:     "users.user_id",
	},
	KindExam: {
		base:    func(db *gorm.DB) *gorm.DB { return db.Table("exams") },
		filters: examFilters,
		orderable: map[string]string{
			"exam_id":    "exams.exam_id",
			"exam_name":  "exams.exam_name",
			"subject_id": "exams.subject_id",
			"login_code": "exams.login_code",
			"start_date": "exams.start_date",
			"end_date":   "exams.end_date",
			"duration":   "exams.duration",
		},
		defaultOrderBy: "start_date",
		primaryKey:     "exams.exam_id",
	},
	KindExamRecording: {
		base:    recordingBase,
		filters: recordingFilters,
		orderable: map[string]string{
			"exam_recording_id": "exam_recordings.exam_recording_id",
			"exam_id":           "exam_recordings.exam_id",
			"user_id":           "exam_recordings.user_id",
			"time_started":      "exam_recordings.time_started",
			"time_ended":        "exam_recordings.time_ended",
			"first_name":        "users.first_name",
			"last_name":         "users.last_name",
			"exam_name":         "exams.exam_name",
			"login_code":        "exams.login_code",
			"warning_count":     "warning_count",
		},
		defaultOrderBy: "time_started",
		primaryKey:     "exam_recordings.exam_recording_id",
	},
	KindExamWarning: {
		base:    warningBase,
		filters: warningFilters,
		orderable: map[string]string{
			"exam_warning_id":   "exam_warnings.exam_warning_id",
			"exam_recording_id": "exam_warnings.exam_recording_id",
			"warning_time":      "exam_warnings.warning_time",
			"user_id":           "exam_recordings.user_id",
			"exam_id":           "exam_recordings.exam_id",
		},
		defaultOrderBy: "warning_time",
		primaryKey:     "exam_warnings.exam_warning_id",
	},
}

const warningCountExpr = "COUNT(exam_warnings.exam_warning_id)"

// recordingBase joins each recording with its user and exam and counts its
// warnings. The count is only usable through HAVING.
func recordingBase(db *gorm.DB) *gorm.DB {
	return db.Table("exam_recordings").
		Select("exam_recordings.*, users.first_name, users.last_name, exams.exam_name, exams.login_code, exams.subject_id, " +
			"exams.duration AS exam_duration, " + warningCountExpr + " AS warning_count").
		Joins("JOIN users ON users.user_id = exam_recordings.user_id").
		Joins("JOIN exams ON exams.exam_id = exam_recordings.exam_id").
		Joins("LEFT JOIN exam_warnings ON exam_warnings.exam_recording_id = exam_recordings.exam_recording_id").
		Group("exam_recordings.exam_recording_id, users.user_id, users.first_name, users.last_name, " +
			"exams.exam_id, exams.exam_name, exams.login_code, exams.subject_id, exams.duration")
}

func warningBase(db *gorm.DB) *gorm.DB {
	return db.Table("exam_warnings").
		Select("exam_warnings.*, exam_recordings.user_id, exam_recordings.exam_id").
		Joins("JOIN exam_recordings ON exam_recordings.exam_recording_id = exam_warnings.exam_recording_id")
}

func userFilters(b *filterBuilder) {
	b.uintEq("user_id", "users.user_id")
	b.boolEq("is_examiner", "users.is_examiner")
	b.prefix("first_name", "users.first_name")
	b.prefix("last_name", "users.last_name")
}

func examFilters(b *filterBuilder) {
	b.uintEq("exam_id", "exams.exam_id")
	b.uintEq("subject_id", "exams.subject_id")
	b.prefix("login_code", "exams.login_code")
	b.prefix("exam_name", "exams.exam_name")
	b.period("exams.start_date", "exams.end_date")
}

func recordingFilters(b *filterBuilder) {
	b.uintEq("exam_recording_id", "exam_recordings.exam_recording_id")
	b.uintEq("exam_id", "exam_recordings.exam_id")
	b.uintEq("user_id", "exam_recordings.user_id")
	b.uintEq("subject_id", "exams.subject_id")
	b.isNull("in_progress", "exam_recordings.time_ended")
	b.prefix("first_name", "users.first_name")
	b.prefix("last_name", "users.last_name")
	b.prefix("exam_name", "exams.exam_name")
	b.prefix("login_code", "exams.login_code")
	b.period("exam_recordings.time_started", "exam_recordings.time_ended")
	b.warningCount(warningCountExpr)
}

func warningFilters(b *filterBuilder) {
	b.uintEq("exam_warning_id", "exam_warnings.exam_warning_id")
	b.uintEq("exam_recording_id", "exam_warnings.exam_recording_id")
	b.uintEq("user_id", "exam_recordings.user_id")
	b.uintEq("exam_id", "exam_recordings.exam_id")
	b.period("exam_warnings.warning_time", "exam_warnings.warning_time")
}

// QueryEngine runs filtered, ordered and paginated listings. It only reads;
// lazy expiry of recordings is done by the caller.
type QueryEngine struct {
	DB      *gorm.DB
	Retries int
}

func NewQueryEngine(db *gorm.DB, retries int) *QueryEngine {
	return &QueryEngine{DB: db, Retries: retries}
}

func (e *QueryEngine) Users(ctx context.Context, p ListParams) (PageResult[model.User], error) {
	return query[model.User](ctx, e, KindUser, p)
}

func (e *QueryEngine) Exams(ctx context.Context, p ListParams) (PageResult[model.Exam], error) {
	return query[model.Exam](ctx, e, KindExam, p)
}

func (e *QueryEngine) Recordings(ctx context.Context, p ListParams) (PageResult[model.RecordingRow], error) {
	return query[model.RecordingRow](ctx, e, KindExamRecording, p)
}

func (e *QueryEngine) Warnings(ctx context.Context, p ListParams) (PageResult[model.WarningRow], error) {
	return query[model.WarningRow](ctx, e, KindExamWarning, p)
}

// query fetches one row past the page to learn whether another page exists.
func query[T any](ctx context.Context, e *QueryEngine, kind Kind, p ListParams) (PageResult[T], error) {
	var result PageResult[T]

	spec, ok := kindSpecs[kind]
	if !ok {
		return result, util.NewValidationError("unknown record kind "+string(kind), "kind")
	}

	b := newFilterBuilder(p.Filters, e.DB.Dialector.Name())
	spec.filters(b)
	if len(b.invalid) > 0 {
		return result, util.NewValidationError("invalid filter value", b.invalid...)
	}

	number, size := p.Page()
	column, ok := spec.orderable[p.OrderBy]
	if !ok {
		column = spec.orderable[spec.defaultOrderBy]
	}
	direction := "DESC"
	if strings.EqualFold(p.Order, "asc") {
		direction = "ASC"
	}

	ctx, span := tracing.StartSpan(ctx, "listing."+string(kind),
		attribute.Int("page_number", number),
		attribute.Int("page_size", size),
		attribute.Int("filters", b.applied),
	)
	start := time.Now()

	var rows []T
	err := withRetry(ctx, e.Retries, "list "+string(kind), func() error {
		rows = nil
		q := spec.base(e.DB.WithContext(ctx)).Scopes(b.scopes...)
		q = q.Order(column + " " + direction)
		if column != spec.primaryKey {
			q = q.Order(spec.primaryKey + " " + direction)
		}
		return translate(q.Offset((number-1)*size).Limit(size+1).Find(&rows).Error, string(kind), nil)
	})

	monitoring.QueryDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)
	if err != nil {
		return result, err
	}

	if len(rows) > size {
		rows = rows[:size]
		result.HasNext = true
	}
	result.Items = rows
	return result, nil
}
