package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/admit/internal/adapters/repository"
	"github.com/okian/admit/internal/domain/model"
	"github.com/okian/admit/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// idOrder sorts an id column the way model.IDLess does: decimal ids first by
// numeric value, then everything else by bytes.
func idOrder(col string) string {
	return fmt.Sprintf(`(%[1]s !~ '^[0-9]+$'), `+
		`CASE WHEN %[1]s ~ '^[0-9]+$' THEN length(ltrim(%[1]s, '0')) END, `+
		`CASE WHEN %[1]s ~ '^[0-9]+$' THEN ltrim(%[1]s, '0') END COLLATE "C", `+
		`%[1]s COLLATE "C"`, col)
}

// rankOrder mirrors model.RanksBefore over the r/b aliases.
var rankOrder = "b.prioritized DESC, b.mu DESC, b.sigma_squared ASC, r.submitted_at ASC, " + idOrder("r.id")

const rankedColumns = "r.*, b.mu AS belief_mu, b.sigma_squared AS belief_sigma_squared, " +
	"b.prioritized AS belief_prioritized, b.review_count AS belief_review_count, " +
	"b.updated_at AS belief_updated_at, b.version AS belief_version"

func awaitingStatuses() []string {
	var out []string
	for _, st := range []model.ApplicationStatus{
		model.StatusPending, model.StatusAccepted, model.StatusRejected,
		model.StatusWaitlisted, model.StatusConfirmed, model.StatusDeclined,
	} {
		if st.AwaitingDecision() {
			out = append(out, string(st))
		}
	}
	return out
}

// tx runs statements on one gorm transaction.
type tx struct {
	db *gorm.DB
	s  *Store
}

var _ repository.Tx = (*tx)(nil)

// create inserts row under a savepoint so a unique violation leaves the
// enclosing transaction usable.
func (t *tx) create(ctx context.Context, row any) error {
	return t.db.WithContext(ctx).Transaction(func(sp *gorm.DB) error {
		return sp.Create(row).Error
	})
}

func (t *tx) fail(ctx context.Context, op string, err error, fields ...logger.Field) error {
	if mapped, ok := classify(err); ok {
		return mapped
	}
	return t.s.logError(ctx, op, err, fields...)
}

func (t *tx) GetRegistration(ctx context.Context, id string) (model.Registration, error) {
	var row registrationModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&row).Error
	if err != nil {
		return model.Registration{}, t.fail(ctx, "get_registration", err, logger.String("registration_id", id))
	}
	return row.toEntity(), nil
}

func (t *tx) CreateRegistration(ctx context.Context, reg model.Registration) (model.Registration, error) {
	reg.Version = 1
	row := registrationModelFromEntity(reg)
	if err := t.create(ctx, &row); err != nil {
		return model.Registration{}, t.fail(ctx, "create_registration", err, logger.String("registration_id", reg.ID))
	}
	return row.toEntity(), nil
}

func (t *tx) UpdateRegistration(ctx context.Context, reg model.Registration) (model.Registration, error) {
	row := registrationModelFromEntity(reg)
	res := t.db.WithContext(ctx).
		Model(&row).
		Clauses(clause.Returning{}).
		Where("version = ?", reg.Version).
		Updates(row.updates(reg.Version + 1))
	if res.Error != nil {
		return model.Registration{}, t.fail(ctx, "update_registration", res.Error, logger.String("registration_id", reg.ID))
	}
	if res.RowsAffected == 0 {
		return model.Registration{}, t.missingOrStale(ctx, &registrationModel{}, "id = ?", reg.ID)
	}
	return row.toEntity(), nil
}

// missingOrStale explains a conditional update that touched no row.
func (t *tx) missingOrStale(ctx context.Context, m any, where string, args ...any) error {
	var n int64
	if err := t.db.WithContext(ctx).Model(m).Where(where, args...).Count(&n).Error; err != nil {
		return t.fail(ctx, "check_version", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrConcurrencyConflict
}

func (t *tx) QueryRegistrations(ctx context.Context, q repository.RegistrationQuery) ([]model.Registration, error) {
	if q.Limit < 0 {
		return nil, repository.ErrInvalidLimit
	}

	db := t.db.WithContext(ctx).Model(&registrationModel{})
	if q.HackathonID != "" {
		db = db.Where("hackathon_id = ?", q.HackathonID)
	}
	if q.ApplicantID != "" {
		db = db.Where("applicant_id = ?", q.ApplicantID)
	}
	if len(q.ReviewStatuses) > 0 {
		list := make([]string, len(q.ReviewStatuses))
		for i, st := range q.ReviewStatuses {
			list[i] = string(st)
		}
		db = db.Where("review_status IN ?", list)
	}
	if len(q.ApplicationStatuses) > 0 {
		list := make([]string, len(q.ApplicationStatuses))
		for i, st := range q.ApplicationStatuses {
			list[i] = string(st)
		}
		db = db.Where("application_status IN ?", list)
	}
	if q.ExcludeReviewer != "" {
		db = db.
			Where("NOT EXISTS (SELECT 1 FROM review_assignments a WHERE a.registration_id = registrations.id AND a.reviewer_id = ?)", q.ExcludeReviewer).
			Where("NOT EXISTS (SELECT 1 FROM reviews v WHERE v.registration_id = registrations.id AND v.reviewer_id = ?)", q.ExcludeReviewer)
	}
	if q.MaxAssigned > 0 {
		db = db.Where("assigned_count < ?", q.MaxAssigned)
	}
	if q.RsvpDeadlineBefore != nil {
		db = db.Where("rsvp_deadline IS NOT NULL AND rsvp_deadline < ?", q.RsvpDeadlineBefore.UTC())
	}
	if q.RsvpPending {
		db = db.Where("rsvp_at IS NULL")
	}

	if q.Order == repository.OrderAssignment {
		db = db.Order("review_count ASC, submitted_at ASC, " + idOrder("id"))
	} else {
		db = db.Order("submitted_at ASC, " + idOrder("id"))
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []registrationModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, t.fail(ctx, "query_registrations", err, logger.String("hackathon_id", q.HackathonID))
	}
	out := make([]model.Registration, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

// queue selects a hackathon's acceptance queue.
func (t *tx) queue(ctx context.Context, hackathonID string) *gorm.DB {
	return t.db.WithContext(ctx).
		Table("registrations AS r").
		Joins("JOIN applicant_beliefs AS b ON b.hackathon_id = r.hackathon_id AND b.applicant_id = r.applicant_id").
		Where("r.hackathon_id = ?", hackathonID).
		Where("r.review_status = ?", string(model.ReviewGraded)).
		Where("r.application_status IN ?", awaitingStatuses())
}

func (t *tx) RankForAcceptance(ctx context.Context, hackathonID string, limit int) ([]model.Ranked, error) {
	if limit < 1 {
		return nil, repository.ErrInvalidLimit
	}
	var rows []rankedRow
	err := t.queue(ctx, hackathonID).
		Select(rankedColumns).
		Order(rankOrder).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, t.fail(ctx, "rank_for_acceptance", err, logger.String("hackathon_id", hackathonID))
	}
	out := make([]model.Ranked, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

func (t *tx) AcceptancePosition(ctx context.Context, registrationID string) (int, error) {
	var reg registrationModel
	if err := t.db.WithContext(ctx).Where("id = ?", registrationID).First(&reg).Error; err != nil {
		return 0, t.fail(ctx, "acceptance_position", err, logger.String("registration_id", registrationID))
	}

	var pos []int64
	ranked := t.queue(ctx, reg.HackathonID).
		Select("r.id, ROW_NUMBER() OVER (ORDER BY " + rankOrder + ") AS pos")
	err := t.db.WithContext(ctx).
		Table("(?) AS q", ranked).
		Where("q.id = ?", registrationID).
		Pluck("q.pos", &pos).Error
	if err != nil {
		return 0, t.fail(ctx, "acceptance_position", err, logger.String("registration_id", registrationID))
	}
	if len(pos) == 0 {
		return 0, repository.ErrNotFound
	}
	return int(pos[0]), nil
}

type statusCount struct {
	ReviewStatus      string `gorm:"column:review_status"`
	ApplicationStatus string `gorm:"column:application_status"`
	Total             int    `gorm:"column:total"`
}

func (t *tx) Summarize(ctx context.Context) (repository.Summary, error) {
	var counts []statusCount
	err := t.db.WithContext(ctx).
		Model(&registrationModel{}).
		Select("review_status, application_status, count(*) AS total").
		Group("review_status, application_status").
		Scan(&counts).Error
	if err != nil {
		return repository.Summary{}, t.fail(ctx, "summarize", err)
	}

	sum := repository.Summary{
		ByReviewStatus: make(map[model.ReviewStatus]int),
		ByApplication:  make(map[model.ApplicationStatus]int),
	}
	for _, c := range counts {
		rs, as := model.ReviewStatus(c.ReviewStatus), model.ApplicationStatus(c.ApplicationStatus)
		sum.Registrations += c.Total
		sum.ByReviewStatus[rs] += c.Total
		sum.ByApplication[as] += c.Total
		if rs == model.ReviewGraded && as.AwaitingDecision() {
			sum.AwaitingDecision += c.Total
		}
	}

	var reviews, beliefs, prioritized int64
	if err := t.db.WithContext(ctx).Model(&reviewModel{}).Count(&reviews).Error; err != nil {
		return repository.Summary{}, t.fail(ctx, "summarize", err)
	}
	if err := t.db.WithContext(ctx).Model(&beliefModel{}).Count(&beliefs).Error; err != nil {
		return repository.Summary{}, t.fail(ctx, "summarize", err)
	}
	if err := t.db.WithContext(ctx).Model(&beliefModel{}).Where("prioritized").Count(&prioritized).Error; err != nil {
		return repository.Summary{}, t.fail(ctx, "summarize", err)
	}
	sum.Reviews = int(reviews)
	sum.Beliefs = int(beliefs)
	sum.Prioritized = int(prioritized)
	return sum, nil
}

func (t *tx) CreateAssignment(ctx context.Context, a model.Assignment) error {
	row := assignmentModel{
		RegistrationID: a.RegistrationID,
		ReviewerID:     a.ReviewerID,
		AssignedAt:     a.AssignedAt.UTC(),
	}
	if err := t.create(ctx, &row); err != nil {
		return t.fail(ctx, "create_assignment", err,
			logger.String("registration_id", a.RegistrationID),
			logger.String("reviewer_id", a.ReviewerID),
		)
	}
	return nil
}

func (t *tx) HasAssignment(ctx context.Context, registrationID, reviewerID string) (bool, error) {
	var n int64
	err := t.db.WithContext(ctx).
		Model(&assignmentModel{}).
		Where("registration_id = ? AND reviewer_id = ?", registrationID, reviewerID).
		Count(&n).Error
	if err != nil {
		return false, t.fail(ctx, "has_assignment", err, logger.String("registration_id", registrationID))
	}
	return n > 0, nil
}

func (t *tx) CreateReview(ctx context.Context, r model.Review) (model.Review, error) {
	row := reviewModel{
		ID:             r.ID,
		RegistrationID: r.RegistrationID,
		ReviewerID:     r.ReviewerID,
		Grade:          string(r.Grade),
		Notes:          r.Notes,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if err := t.create(ctx, &row); err != nil {
		return model.Review{}, t.fail(ctx, "create_review", err,
			logger.String("registration_id", r.RegistrationID),
			logger.String("reviewer_id", r.ReviewerID),
		)
	}
	return row.toEntity(), nil
}

func (t *tx) FindReview(ctx context.Context, registrationID, reviewerID string) (model.Review, error) {
	var row reviewModel
	err := t.db.WithContext(ctx).
		Where("registration_id = ? AND reviewer_id = ?", registrationID, reviewerID).
		First(&row).Error
	if err != nil {
		return model.Review{}, t.fail(ctx, "find_review", err, logger.String("registration_id", registrationID))
	}
	return row.toEntity(), nil
}

func (t *tx) ListReviews(ctx context.Context, registrationID string) ([]model.Review, error) {
	var rows []reviewModel
	err := t.db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, t.fail(ctx, "list_reviews", err, logger.String("registration_id", registrationID))
	}
	out := make([]model.Review, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}

func (t *tx) GetBelief(ctx context.Context, key model.BeliefKey) (model.ApplicantBelief, error) {
	var row beliefModel
	err := t.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("hackathon_id = ? AND applicant_id = ?", key.HackathonID, key.ApplicantID).
		First(&row).Error
	if err != nil {
		return model.ApplicantBelief{}, t.fail(ctx, "get_belief", err,
			logger.String("hackathon_id", key.HackathonID),
			logger.String("applicant_id", key.ApplicantID),
		)
	}
	return row.toEntity(), nil
}

func (t *tx) CreateBelief(ctx context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error) {
	b.Version = 1
	row := beliefModelFromEntity(b)
	if err := t.create(ctx, &row); err != nil {
		if isUniqueViolation(err) {
			// Another unit created it after our read.
			return model.ApplicantBelief{}, fmt.Errorf("%w: %v", repository.ErrConcurrencyConflict, err)
		}
		return model.ApplicantBelief{}, t.fail(ctx, "create_belief", err,
			logger.String("hackathon_id", b.HackathonID),
			logger.String("applicant_id", b.ApplicantID),
		)
	}
	return row.toEntity(), nil
}

func (t *tx) UpdateBelief(ctx context.Context, b model.ApplicantBelief) (model.ApplicantBelief, error) {
	row := beliefModelFromEntity(b)
	res := t.db.WithContext(ctx).
		Model(&beliefModel{}).
		Where("hackathon_id = ? AND applicant_id = ? AND version = ?", b.HackathonID, b.ApplicantID, b.Version).
		Updates(map[string]any{
			"mu":            row.Mu,
			"sigma_squared": row.SigmaSquared,
			"prioritized":   row.Prioritized,
			"review_count":  row.ReviewCount,
			"updated_at":    row.UpdatedAt,
			"version":       b.Version + 1,
		})
	if res.Error != nil {
		return model.ApplicantBelief{}, t.fail(ctx, "update_belief", res.Error,
			logger.String("hackathon_id", b.HackathonID),
			logger.String("applicant_id", b.ApplicantID),
		)
	}
	if res.RowsAffected == 0 {
		return model.ApplicantBelief{}, t.missingOrStale(ctx, &beliefModel{},
			"hackathon_id = ? AND applicant_id = ?", b.HackathonID, b.ApplicantID)
	}
	b.Version++
	return b, nil
}

func (t *tx) GetReviewerStats(ctx context.Context, reviewerID string) (model.ReviewerStats, error) {
	var row reviewerStatsModel
	if err := t.db.WithContext(ctx).Where("reviewer_id = ?", reviewerID).First(&row).Error; err != nil {
		return model.ReviewerStats{}, t.fail(ctx, "get_reviewer_stats", err, logger.String("reviewer_id", reviewerID))
	}
	return model.ReviewerStats{
		ReviewerID:    row.ReviewerID,
		TotalReviewed: row.TotalReviewed,
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func (t *tx) IncrementReviewerStats(ctx context.Context, reviewerID string, at time.Time) (model.ReviewerStats, error) {
	row := reviewerStatsModel{ReviewerID: reviewerID, TotalReviewed: 1, UpdatedAt: at.UTC()}
	err := t.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "reviewer_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"total_reviewed": gorm.Expr("reviewer_stats.total_reviewed + 1"),
			"updated_at":     row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return model.ReviewerStats{}, t.fail(ctx, "increment_reviewer_stats", err, logger.String("reviewer_id", reviewerID))
	}
	return t.GetReviewerStats(ctx, reviewerID)
}

func (t *tx) AppendEvent(ctx context.Context, e model.Event) error {
	row := eventModelFromEntity(e)
	if err := t.create(ctx, &row); err != nil {
		return t.fail(ctx, "append_event", err, logger.String("event_id", e.EventID))
	}
	return nil
}

func (t *tx) ListEvents(ctx context.Context, registrationID string) ([]model.Event, error) {
	var rows []eventModel
	err := t.db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, t.fail(ctx, "list_events", err, logger.String("registration_id", registrationID))
	}
	out := make([]model.Event, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}
