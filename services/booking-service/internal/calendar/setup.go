package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tonyphoesis/phoesis-website/libs/config"
)

const (
	KindGoogle = "google"
	KindCalDAV = "caldav"
	KindICS    = "ics"
)

type Config struct {
	Kind    string
	Google  GoogleConfig
	CalDAV  CalDAVConfig
	ICS     ICSConfig
	Breaker BreakerConfig
}

func ConfigFromEnv() (Config, error) {
	timeout, err := config.Duration("CALENDAR_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}
	threshold, err := config.Int("CALENDAR_BREAKER_FAILURES", 5)
	if err != nil {
		return Config{}, err
	}
	openFor, err := config.Duration("CALENDAR_BREAKER_TIMEOUT", 0)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Kind: strings.ToLower(config.String("CALENDAR_PROVIDER", KindGoogle)),
		Google: GoogleConfig{
			ClientID:     config.String("GOOGLE_CLIENT_ID", ""),
			ClientSecret: config.String("GOOGLE_CLIENT_SECRET", ""),
			RefreshToken: config.String("GOOGLE_REFRESH_TOKEN", ""),
			CalendarID:   config.String("GOOGLE_CALENDAR_ID", "primary"),
			BaseURL:      config.String("GOOGLE_CALENDAR_BASE_URL", ""),
			Timeout:      timeout,
		},
		CalDAV: CalDAVConfig{
			URL:          config.String("CALDAV_URL", ""),
			Username:     config.String("CALDAV_USERNAME", ""),
			Password:     config.String("CALDAV_PASSWORD", ""),
			CalendarPath: config.String("CALDAV_CALENDAR_PATH", ""),
			MeetingURL:   config.String("CALDAV_MEETING_URL", ""),
			Timeout:      timeout,
		},
		ICS: ICSConfig{
			URL:         config.String("ICS_URL", ""),
			Refresh:     config.String("ICS_REFRESH", defaultICSRefresh),
			DefaultZone: config.String("ICS_DEFAULT_TIMEZONE", ""),
			Timeout:     timeout,
		},
		Breaker: BreakerConfig{
			FailureThreshold: uint32(max(threshold, 1)),
			Timeout:          openFor,
		},
	}, nil
}

// NewProvider builds the configured provider wrapped in a circuit breaker. An ICS feed starts
// its refresh schedule bound to ctx.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Kind {
	case KindGoogle:
		p, err = NewGoogle(cfg.Google, logger)
	case KindCalDAV:
		p, err = NewCalDAV(cfg.CalDAV, logger)
	case KindICS:
		var feed *ICSFeed
		feed, err = NewICSFeed(cfg.ICS, logger)
		if err == nil {
			err = feed.Start(ctx)
		}
		p = feed
	default:
		return nil, fmt.Errorf("unknown CALENDAR_PROVIDER %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	b := cfg.Breaker
	if b.Name == "" {
		b.Name = "calendar-" + cfg.Kind
	}
	return NewBreaker(p, b, logger), nil
}
