// Package jobs holds the scheduled background work of the service.
package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"order-fulfillment-service/internal/service"
)

// WebhookRetryJob periodically sweeps the webhook ledger for pending
// entries whose nextRetryAt has elapsed and re-attempts them. Cadence
// is a deployment choice, not a correctness requirement.
type WebhookRetryJob struct {
	svc  *service.WebhookService
	cron *cron.Cron
	spec string
	log  zerolog.Logger
}

func NewWebhookRetryJob(svc *service.WebhookService, spec string, log zerolog.Logger) *WebhookRetryJob {
	return &WebhookRetryJob{
		svc:  svc,
		cron: cron.New(cron.WithSeconds()),
		spec: spec,
		log:  log.With().Str("component", "webhook_retry_job").Logger(),
	}
}

func (j *WebhookRetryJob) Start() error {
	_, err := j.cron.AddFunc(j.spec, func() {
		ctx := context.Background()

		n, err := j.svc.SweepDue(ctx)
		if err != nil {
			j.log.Error().Err(err).Msg("webhook retry sweep failed")
			return
		}
		if n > 0 {
			j.log.Info().Int("attempted", n).Msg("webhook retry sweep completed")
		}
	})
	if err != nil {
		return err
	}

	j.cron.Start()
	j.log.Info().Str("spec", j.spec).Msg("webhook retry job started")
	return nil
}

func (j *WebhookRetryJob) Stop() {
	j.cron.Stop()
	j.log.Info().Msg("webhook retry job stopped")
}
