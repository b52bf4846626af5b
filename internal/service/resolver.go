package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Outcome classifies what the visitor gets. Every outcome maps to exactly one
// redirect; resolution never surfaces a raw error page.
type Outcome string

const (
	OutcomeDestination   Outcome = "destination"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeExpired       Outcome = "expired"
	OutcomeNotActive     Outcome = "not_active"
	OutcomePassword      Outcome = "password_required"
	OutcomeLandingPage   Outcome = "landing_page"
	OutcomeContentView   Outcome = "content_view"
	OutcomeLimitReached  Outcome = "limit_reached"
	OutcomeNoDestination Outcome = "no_destination"
)

// Resolution is the single decision for one visit: where to send the visitor
// and whether the visit was handed to the recorder.
type Resolution struct {
	Outcome   Outcome
	TargetURL string
	Reason    ScheduleReason // set for OutcomeNotActive
	Recorded  bool
}

// Monthly scan quotas per tier; -1 is unlimited.
var tierQuotas = map[models.Tier]int64{
	models.TierFree:     1000,
	models.TierStarter:  10000,
	models.TierPro:      50000,
	models.TierBusiness: -1,
}

// Short TTL: the cached link carries the quota counters, so staleness here
// bounds how long an over-quota link keeps resolving.
const linkCacheTTL = 5 * time.Minute

// ScanRecorder is the fire-and-forget hand-off to the recording pipeline.
// Submissions must never block or fail the caller.
type ScanRecorder interface {
	Submit(link *models.Link, req *models.ScanRequest)
}

// Resolver turns a short code plus request metadata into exactly one
// Resolution, evaluating the owner-configured gates in fixed order.
type Resolver struct {
	linkRepo       repository.LinkRepository
	cacheRepo      repository.CacheRepository
	experimentRepo repository.ExperimentRepository
	selector       *VariantSelector
	recorder       ScanRecorder
	ipSalt         string
	now            func() time.Time
	logger         *zap.Logger
}

func NewResolver(
	linkRepo repository.LinkRepository,
	cacheRepo repository.CacheRepository,
	experimentRepo repository.ExperimentRepository,
	selector *VariantSelector,
	recorder ScanRecorder,
	ipSalt string,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		linkRepo:       linkRepo,
		cacheRepo:      cacheRepo,
		experimentRepo: experimentRepo,
		selector:       selector,
		recorder:       recorder,
		ipSalt:         ipSalt,
		now:            time.Now,
		logger:         logger,
	}
}

// WithClock replaces the resolver's clock. Test hook.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve evaluates the gate chain for code. Gates short-circuit in order:
// not-found, expired, activation window, password, custom landing page,
// content landing route, quota, experiment, destination derivation.
func (r *Resolver) Resolve(ctx context.Context, code string, req *models.ScanRequest) *Resolution {
	link, err := r.getLink(ctx, code)
	if err != nil {
		if !errors.Is(err, repository.ErrLinkNotFound) {
			r.logger.Error("link lookup failed", zap.String("code", code), zap.Error(err))
		}
		return &Resolution{Outcome: OutcomeNotFound, TargetURL: "/"}
	}

	now := r.now()

	if link.ExpiresAt != nil && now.After(*link.ExpiresAt) {
		return &Resolution{Outcome: OutcomeExpired, TargetURL: "/expired"}
	}

	status := EvaluateSchedule(now, link.ActiveFrom, link.ActiveUntil, link.Schedule, link.Timezone)
	if !status.Active {
		return &Resolution{
			Outcome:   OutcomeNotActive,
			TargetURL: "/not-active?reason=" + string(status.Reason),
			Reason:    status.Reason,
		}
	}

	if link.PasswordHash != nil && *link.PasswordHash != "" {
		// Resolution stops here; the unlock flow re-enters after verification.
		return &Resolution{Outcome: OutcomePassword, TargetURL: "/unlock/" + link.ShortCode}
	}

	if link.LandingPageURL != nil && *link.LandingPageURL != "" {
		r.record(link, req)
		return &Resolution{
			Outcome:   OutcomeLandingPage,
			TargetURL: *link.LandingPageURL,
			Recorded:  true,
		}
	}

	if hasContentViewRoute(link.ContentType) {
		r.record(link, req)
		return &Resolution{
			Outcome:   OutcomeContentView,
			TargetURL: "/v/" + link.ShortCode,
			Recorded:  true,
		}
	}

	if r.quotaExceeded(link, now) {
		return &Resolution{Outcome: OutcomeLimitReached, TargetURL: "/limit-reached"}
	}

	destination, ok := r.experimentDestination(ctx, link, req)
	if !ok {
		destination, ok = DeriveDestination(link)
		if !ok {
			return &Resolution{Outcome: OutcomeNoDestination, TargetURL: "/"}
		}
	}

	r.record(link, req)

	return &Resolution{
		Outcome:   OutcomeDestination,
		TargetURL: NormalizeDestination(destination),
		Recorded:  true,
	}
}

// VerifyPassword checks a visitor-supplied password against the link's bcrypt
// hash. Used by the unlock flow to re-enter resolution.
func (r *Resolver) VerifyPassword(link *models.Link, password string) bool {
	if link.PasswordHash == nil || *link.PasswordHash == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword([]byte(*link.PasswordHash), []byte(password)) == nil
}

// getLink is cache-aside over Redis, falling back to Postgres.
func (r *Resolver) getLink(ctx context.Context, code string) (*models.Link, error) {
	link, err := r.cacheRepo.Get(ctx, code)
	if err == nil {
		return link, nil
	}

	link, err = r.linkRepo.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}

	ttl := linkCacheTTL
	if link.ExpiresAt != nil {
		if until := time.Until(*link.ExpiresAt); until > 0 && until < ttl {
			ttl = until
		}
	}
	if err := r.cacheRepo.Set(ctx, code, link, ttl); err != nil {
		r.logger.Debug("failed to cache link", zap.String("code", code), zap.Error(err))
	}

	return link, nil
}

// experimentDestination consults the running split test, if any with at least
// two variants, and returns the sticky variant's destination.
func (r *Resolver) experimentDestination(ctx context.Context, link *models.Link, req *models.ScanRequest) (string, bool) {
	test, err := r.experimentRepo.GetRunningByLink(ctx, link.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNoRunningTest) {
			r.logger.Warn("experiment lookup failed", zap.Int64("link_id", link.ID), zap.Error(err))
		}
		return "", false
	}
	if len(test.Variants) < 2 {
		return "", false
	}

	fingerprint := Fingerprint(req.IPAddress, r.ipSalt)
	variant, err := r.selector.Select(ctx, test, fingerprint)
	if err != nil {
		r.logger.Warn("variant selection failed", zap.Int64("test_id", test.ID), zap.Error(err))
		return "", false
	}

	return variant.DestinationURL, true
}

// quotaExceeded compares monthly usage against the tier quota. A reset stamp
// older than the start of the current month means the counter simply has not
// been touched this month: usage is zero, no reset job required.
func (r *Resolver) quotaExceeded(link *models.Link, now time.Time) bool {
	quota, ok := tierQuotas[link.Tier]
	if !ok {
		quota = tierQuotas[models.TierFree]
	}
	if quota < 0 {
		return false
	}

	usage := link.MonthlyScanCount
	monthStart := MonthStart(now)
	if link.ScanCountResetAt == nil || link.ScanCountResetAt.Before(monthStart) {
		usage = 0
	}

	return usage >= quota
}

// MonthStart returns the UTC start of the month containing t.
func MonthStart(t time.Time) time.Time {
	utc := t.UTC()
	return time.Date(utc.Year(), utc.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func (r *Resolver) record(link *models.Link, req *models.ScanRequest) {
	if r.recorder == nil || req == nil {
		return
	}
	r.recorder.Submit(link, req)
}

// hasContentViewRoute reports whether the content type is served by a
// dedicated preview route instead of an outbound redirect.
func hasContentViewRoute(ct models.ContentType) bool {
	switch ct {
	case models.ContentFile, models.ContentPDF, models.ContentImage, models.ContentMenu:
		return true
	}
	return false
}

// DeriveDestination maps a link's typed content to its destination URL. One
// deterministic rule per content type; types with no natural URL return
// ok=false.
func DeriveDestination(link *models.Link) (string, bool) {
	payload := link.Payload
	if payload == nil {
		payload = &models.ContentPayload{}
	}

	switch link.ContentType {
	case models.ContentURL, models.ContentSocial:
		if link.DestinationURL != nil && *link.DestinationURL != "" {
			return *link.DestinationURL, true
		}
		if payload.ProfileURL != "" {
			return payload.ProfileURL, true
		}
		return "", false

	case models.ContentEmail:
		if payload.Address == "" {
			return "", false
		}
		dest := "mailto:" + payload.Address
		if payload.Subject != "" {
			dest += "?subject=" + url.QueryEscape(payload.Subject)
		}
		return dest, true

	case models.ContentPhone:
		if payload.Phone == "" {
			return "", false
		}
		return "tel:" + payload.Phone, true

	case models.ContentSMS:
		if payload.Phone == "" {
			return "", false
		}
		dest := "sms:" + payload.Phone
		if payload.Message != "" {
			dest += "?body=" + url.QueryEscape(payload.Message)
		}
		return dest, true

	case models.ContentWhatsApp:
		if payload.Phone == "" {
			return "", false
		}
		dest := "https://wa.me/" + strings.TrimPrefix(payload.Phone, "+")
		if payload.Message != "" {
			dest += "?text=" + url.QueryEscape(payload.Message)
		}
		return dest, true

	case models.ContentTelegram:
		if payload.Username == "" {
			return "", false
		}
		return "https://t.me/" + strings.TrimPrefix(payload.Username, "@"), true

	case models.ContentText, models.ContentWiFi, models.ContentVCard:
		// Nothing resolvable: plain text, network credentials and contact
		// cards are rendered, not redirected to.
		return "", false

	default:
		if link.DestinationURL != nil && *link.DestinationURL != "" {
			return *link.DestinationURL, true
		}
		return "", false
	}
}

// NormalizeDestination prepends https to schemeless destinations so they are
// not interpreted as paths relative to the resolver's own origin.
func NormalizeDestination(dest string) string {
	parsed, err := url.Parse(dest)
	if err == nil && parsed.Scheme != "" {
		return dest
	}
	return "https://" + dest
}
