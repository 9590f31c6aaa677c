// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package notifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/n6-community/n6/internal/config"
	"github.com/n6-community/n6/internal/logging"
	"github.com/n6-community/n6/internal/metrics"
	"github.com/n6-community/n6/internal/newsletter/delivery"
)

// OrgConfig is one organization's notification settings, sourced from
// the auth database (spec.md §4.9 step 1 onward).
type OrgConfig struct {
	OrgID             string
	Name              string
	BusinessDaysOnly  bool
	NotificationTimes []string // "HH:MM", ascending order as configured
	Emails            []string
	Language          string
	StreamAPIEnabled  bool
}

// ConfigSource produces the current set of org notification configs. A
// ConfigSource implementation owns its own auth-database connection;
// Notifier only calls Load once per tick.
type ConfigSource interface {
	Load(ctx context.Context) (map[string]OrgConfig, error)
}

// Notifier runs the per-tick, per-org digest notification cycle.
type Notifier struct {
	cfg          config.NotifierConfig
	store        *Store
	renderer     *Renderer
	configSource ConfigSource
	sender       *delivery.Sender
	now          func() time.Time
}

// New returns a Notifier. cfg.TemplatesDirPath may be empty, in which
// case only the built-in template is used.
func New(cfg config.NotifierConfig, store *Store, configSource ConfigSource) *Notifier {
	return &Notifier{
		cfg:          cfg,
		store:        store,
		renderer:     NewRenderer(cfg.TemplatesDirPath),
		configSource: configSource,
		sender:       delivery.NewSender(cfg.ServerSMTPHost),
		now:          func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}
}

// Run executes one full tick: every configured org is evaluated once.
// A single org's failure (template error, SMTP error, bad state) is
// logged and does not abort the remaining orgs.
func (n *Notifier) Run(ctx context.Context) error {
	orgs, err := n.configSource.Load(ctx)
	if err != nil {
		return fmt.Errorf("notifier: load org configs: %w", err)
	}

	now := n.now()
	isBizDay := isBusinessDay(now, n.cfg.RegularDaysOff, n.cfg.MovableDaysOffByEasterOffset)

	for _, org := range orgs {
		if err := n.processOrg(ctx, org, now, isBizDay); err != nil {
			logging.CtxErr(ctx, err).Str("org_id", org.OrgID).Msg("notifier: org notification failed")
		}
	}
	return nil
}

func (n *Notifier) processOrg(ctx context.Context, org OrgConfig, now time.Time, isBizDay bool) error {
	if org.BusinessDaysOnly && !isBizDay {
		metrics.RecordNotifierSkip("not_business_day")
		return nil
	}
	if len(org.NotificationTimes) == 0 || len(org.Emails) == 0 {
		logging.CtxWarn(ctx).Str("org_id", org.OrgID).Msg("notifier: notification times or address not configured")
		metrics.RecordNotifierSkip("not_configured")
		return nil
	}

	lastSend, hasLastSend, err := n.store.LastSendTime(ctx, org.OrgID)
	if err != nil {
		return err
	}
	raw, err := n.store.RawCounter(ctx, org.OrgID)
	if err != nil {
		return err
	}
	if raw == nil {
		logging.CtxInfo(ctx).Str("org_id", org.OrgID).Msg("notifier: no counter data yet, not sending")
		metrics.RecordNotifierSkip("no_counter_data")
		return nil
	}

	if !hasLastSend {
		metrics.RecordNotifierSkip("first_run")
		return n.store.SetLastSendTime(ctx, org.OrgID, now)
	}

	crossed, err := n.thresholdCrossed(org, lastSend, now)
	if err != nil {
		return err
	}
	if !crossed {
		metrics.RecordNotifierSkip("no_threshold_crossed")
		return nil
	}

	lastCounter, err := n.store.LastSendCounter(ctx, org.OrgID)
	if err != nil {
		return err
	}
	toSend := counterDelta(raw, lastCounter)
	if len(toSend) == 0 {
		metrics.RecordNotifierSkip("no_positive_delta")
		return nil
	}

	err = n.renderAndSend(ctx, org, toSend, lastSend, now)
	metrics.RecordNotifierSend(err)
	var te *TemplateError
	if errors.As(err, &te) {
		logging.CtxWarn(ctx).Str("org_id", org.OrgID).Str("reason", te.Error()).Msg("notifier: skipping org, template error")
		return nil
	}
	if err != nil {
		return err
	}

	if err := n.store.SetLastSendCounter(ctx, org.OrgID, raw); err != nil {
		return err
	}
	if err := n.store.SetTimeMin(ctx, org.OrgID, raw); err != nil {
		return err
	}
	if err := n.store.SetLastSendTime(ctx, org.OrgID, now); err != nil {
		return err
	}
	if err := n.store.ClearTime(ctx, org.OrgID); err != nil {
		return err
	}
	logging.CtxInfo(ctx).Str("org_id", org.OrgID).Msg("notifier: sent notification")
	return nil
}

// thresholdCrossed reports whether any of org's configured daily times
// has been crossed in (lastSend, now], walking backward through prior
// business days (skipping weekends and configured days off) when none
// of today's times qualify, exactly as notify_client does upstream.
func (n *Notifier) thresholdCrossed(org OrgConfig, lastSend, now time.Time) (bool, error) {
	maxLookback := n.cfg.MaxBusinessDayLookback
	if maxLookback <= 0 {
		maxLookback = 370
	}

	incDate := now
	for attempt := 0; ; attempt++ {
		for i := len(org.NotificationTimes) - 1; i >= 0; i-- {
			noti, err := combineDate(incDate, org.NotificationTimes[i])
			if err != nil {
				return false, fmt.Errorf("notifier: org %s: %w", org.OrgID, err)
			}
			if lastSend.After(noti) {
				return false, nil
			}
			if lastSend.Before(noti) && !noti.After(now) {
				return true, nil
			}
		}
		if attempt >= maxLookback {
			return false, fmt.Errorf("notifier: org %s: %w", org.OrgID, ErrLookbackExhausted)
		}
		prev, err := previousBusinessDay(incDate, n.cfg.RegularDaysOff, n.cfg.MovableDaysOffByEasterOffset, maxLookback-attempt)
		if err != nil {
			return false, fmt.Errorf("notifier: org %s: %w", org.OrgID, err)
		}
		incDate = prev
	}
}

func combineDate(date time.Time, hhmm string) (time.Time, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, fmt.Errorf("notification time %q is not HH:MM", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("notification time %q: %w", hhmm, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("notification time %q: %w", hhmm, err)
	}
	y, mo, d := date.Date()
	return time.Date(y, mo, d, h, m, 0, 0, date.Location()), nil
}

// counterDelta mirrors get_counter_to_send: with no prior snapshot all
// non-control keys pass through as-is; otherwise only keys whose delta
// is strictly positive are included.
func counterDelta(raw, last map[string]string) map[string]int {
	result := make(map[string]int)
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		rv := toInt(v)
		if last == nil {
			if rv != 0 {
				result[k] = rv
			}
			continue
		}
		lv, ok := last[k]
		if !ok {
			if rv != 0 {
				result[k] = rv
			}
			continue
		}
		if diff := rv - toInt(lv); diff > 0 {
			result[k] = diff
		}
	}
	return result
}

func toInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func (n *Notifier) renderAndSend(ctx context.Context, org OrgConfig, counter map[string]int, lastSend, now time.Time) error {
	lang := org.Language
	if lang == "" {
		lang = n.cfg.DefaultNotificationsLanguage
	}
	if lang == "" {
		lang = "en"
	}

	data := TemplateData{
		Counter:          counter,
		LastSendTime:     lastSend.Format(time.RFC3339),
		Now:              now.Format(time.RFC3339),
		ModifiedMin:      lastSend.Format(time.RFC3339),
		ModifiedMax:      now.Format(time.RFC3339),
		ClientName:       org.Name,
		ClientOrgID:      org.OrgID,
		StreamAPIEnabled: org.StreamAPIEnabled,
		Language:         strings.ToLower(lang),
	}

	subject, body, err := n.renderer.Render(strings.ToLower(lang), data)
	if err != nil {
		return err
	}

	return n.sendMail(ctx, org.Emails, subject, body)
}

// sendMail delivers one plain-text message to every address in to,
// one SMTP session per recipient, mirroring send_message upstream.
func (n *Notifier) sendMail(ctx context.Context, to []string, subject, body string) error {
	sort.Strings(to)
	for _, addr := range to {
		msg := delivery.Message{From: n.cfg.FromAddr, To: addr, Subject: subject, Body: body}
		if err := n.sender.Send(ctx, msg); err != nil {
			return fmt.Errorf("notifier: send to %s: %w", addr, err)
		}
	}
	return nil
}
