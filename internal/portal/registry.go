package portal

import (
	"net/http"

	"jobmate/autoapply-service/internal/config"
	"jobmate/autoapply-service/internal/logger"
	"jobmate/autoapply-service/internal/model"
	"jobmate/autoapply-service/internal/pacing"
)

// FromConfig builds the registry of every known portal. Endpoint overrides in
// cfg.Endpoints replace a portal's public base URL.
func FromConfig(cfg config.PortalsConfig, pace config.PacingConfig, pacer *pacing.Pacer, log logger.Logger) *Registry {
	client := &http.Client{Timeout: config.Duration(cfg.HTTPTimeout)}

	var submitter Submitter = NewDryRunSubmitter(nil)
	if cfg.SubmitMode == config.SubmitLive {
		submitter = NewGatewaySubmitter(cfg.ApplyGatewayURL, client, nil)
	}

	opts := Options{
		Client:          client,
		UserAgent:       cfg.UserAgent,
		DefaultLocation: cfg.DefaultLocation,
		ListingDelay: pacing.Range{
			Min: config.Duration(pace.ListingMin),
			Max: config.Duration(pace.ListingMax),
		},
		Pacer:     pacer,
		Submitter: submitter,
		Logger:    log,
	}
	endpoint := func(p model.Portal) string { return cfg.Endpoints[string(p)] }

	return NewRegistry(
		NewLinkedIn(endpoint(model.PortalLinkedIn), opts),
		NewLaborum(endpoint(model.PortalLaborum), opts),
		NewBNE(endpoint(model.PortalBNE), opts),
		NewTrabajando(endpoint(model.PortalTrabajando), opts),
		NewAdzuna(endpoint(model.PortalAdzuna), cfg.Adzuna.AppID, cfg.Adzuna.AppKey, cfg.Adzuna.Country, opts),
	)
}
