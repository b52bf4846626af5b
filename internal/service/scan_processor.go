package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mkorolev/qrlink/internal/models"
	"github.com/mkorolev/qrlink/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultWorkerCount   = 3
	defaultChannelBuffer = 1000
	insertMaxRetries     = 3
)

// EventDispatcher is the hand-off from a recorded scan to outbound webhook
// delivery. Implementations must not surface errors to the recorder.
type EventDispatcher interface {
	DispatchScan(ctx context.Context, link *models.Link, scan *models.ScanEvent)
}

// ScanProcessor records visits off the request path. Submissions are
// best-effort: a full buffer drops the event rather than blocking a redirect.
type ScanProcessor interface {
	ScanRecorder
	Start()
	Stop()
	GetStats(ctx context.Context, shortCode string) (*models.ScanStats, error)
}

type scanJob struct {
	link *models.Link
	req  models.ScanRequest
}

// scanProcessor drains a buffered channel with a fixed worker pool. Each job
// runs the full recording pipeline: bot filter, IP hashing, user-agent
// classification, geo lookup, insert, counter increment, webhook dispatch.
type scanProcessor struct {
	scanRepo   repository.ScanRepository
	linkRepo   repository.LinkRepository
	geo        *GeoCache
	dispatcher EventDispatcher
	ipSalt     string
	logger     *zap.Logger

	jobs        chan scanJob
	workerCount int
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

type ScanProcessorOptions struct {
	Workers    int
	BufferSize int
	IPSalt     string
}

func NewScanProcessor(
	scanRepo repository.ScanRepository,
	linkRepo repository.LinkRepository,
	geo *GeoCache,
	dispatcher EventDispatcher,
	opts ScanProcessorOptions,
	logger *zap.Logger,
) ScanProcessor {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkerCount
	}
	buffer := opts.BufferSize
	if buffer <= 0 {
		buffer = defaultChannelBuffer
	}

	return &scanProcessor{
		scanRepo:    scanRepo,
		linkRepo:    linkRepo,
		geo:         geo,
		dispatcher:  dispatcher,
		ipSalt:      opts.IPSalt,
		logger:      logger,
		jobs:        make(chan scanJob, buffer),
		workerCount: workers,
	}
}

func (p *scanProcessor) Start() {
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.logger.Info("starting scan workers", zap.Int("count", p.workerCount))

	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

func (p *scanProcessor) Stop() {
	p.logger.Info("stopping scan processor")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("scan processor stopped")
}

// Submit hands a visit to the pool without blocking. A full buffer loses the
// event with a warning; the redirect already sent is never affected.
func (p *scanProcessor) Submit(link *models.Link, req *models.ScanRequest) {
	select {
	case p.jobs <- scanJob{link: link, req: *req}:
	default:
		p.logger.Warn("scan buffer full, event dropped",
			zap.String("short_code", link.ShortCode),
		)
	}
}

func (p *scanProcessor) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("scan worker started", zap.Int("id", id))

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug("scan worker stopped", zap.Int("id", id))
			return

		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processScan(job)
		}
	}
}

// processScan runs the recording pipeline for one visit. Every step is
// best-effort: failures are logged and the rest of the pipeline continues or
// bails quietly, never propagating to a caller.
func (p *scanProcessor) processScan(job scanJob) {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	if IsBot(job.req.UserAgent) {
		p.logger.Debug("bot visit discarded",
			zap.String("short_code", job.link.ShortCode),
		)
		return
	}

	info := ClassifyUserAgent(job.req.UserAgent)

	scan := &models.ScanEvent{
		ID:         uuid.New(),
		LinkID:     job.link.ID,
		ShortCode:  job.link.ShortCode,
		ScannedAt:  time.Now(),
		IPHash:     HashIP(job.req.IPAddress, p.ipSalt),
		DeviceType: info.DeviceType,
		OS:         info.OS,
		Browser:    info.Browser,
		Referrer:   job.req.Referrer,
	}

	if p.geo != nil {
		if geo := p.geo.Resolve(ctx, job.req.IPAddress); geo != nil {
			scan.Country = &geo.Country
			scan.Region = &geo.Region
			scan.City = &geo.City
		}
	}

	if !p.insertWithRetry(ctx, scan) {
		return
	}

	if err := p.linkRepo.IncrementScanCount(ctx, job.link.ID, MonthStart(scan.ScannedAt)); err != nil {
		p.logger.Warn("failed to increment scan count",
			zap.String("short_code", job.link.ShortCode),
			zap.Error(err),
		)
	}

	if p.dispatcher != nil {
		p.dispatcher.DispatchScan(ctx, job.link, scan)
	}
}

func (p *scanProcessor) insertWithRetry(ctx context.Context, scan *models.ScanEvent) bool {
	var lastErr error
	for i := 0; i < insertMaxRetries; i++ {
		if err := p.scanRepo.Insert(ctx, scan); err == nil {
			return true
		} else {
			lastErr = err
		}
		if i < insertMaxRetries-1 {
			p.logger.Debug("retrying scan insert",
				zap.String("short_code", scan.ShortCode),
				zap.Int("attempt", i+1),
				zap.Error(lastErr),
			)
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}

	p.logger.Error("failed to insert scan after retries",
		zap.String("short_code", scan.ShortCode),
		zap.Error(lastErr),
	)
	return false
}

func (p *scanProcessor) GetStats(ctx context.Context, shortCode string) (*models.ScanStats, error) {
	return p.scanRepo.GetStats(ctx, shortCode)
}
