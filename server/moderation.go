package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/alejzeis/strangerchat/common"

	"github.com/dgrijalva/jwt-go"
	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
)

// Report is a user report handed to moderation. Nothing about it is kept by the server.
type Report struct {
	ReporterID string    `json:"reporterId"`
	TargetID   string    `json:"targetId"`
	PartnerID  string    `json:"partnerId,omitempty"`
	Reason     string    `json:"reason"`
	ReportedAt time.Time `json:"reportedAt"`
}

// ModerationSink receives reports. Submit is called outside the matchmaker lock but on the
// reporting client's read loop, so implementations should return quickly.
type ModerationSink interface {
	Submit(report Report)
}

// LogModerationSink writes reports to the log and nothing else
type LogModerationSink struct{}

func (LogModerationSink) Submit(report Report) {
	log.WithFields(log.Fields{
		"reporter": report.ReporterID,
		"target":   report.TargetID,
		"partner":  report.PartnerID,
		"reason":   report.Reason,
	}).Warn("User report received")
}

// How long a webhook token stays valid
const reportTokenLifetime = 2 * time.Minute

// WebhookModerationSink posts every report as JSON to an external moderation service.
// Requests carry a short-lived HS384 JWT so the receiver can check they came from this server.
type WebhookModerationSink struct {
	rest   *resty.Client
	url    string
	secret []byte
}

// NewWebhookModerationSink creates a sink posting to url. secret signs the bearer token.
func NewWebhookModerationSink(url string, secret string, timeout time.Duration) *WebhookModerationSink {
	rest := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", common.SoftwareName+"/"+common.SoftwareVersion)

	return &WebhookModerationSink{
		rest:   rest,
		url:    url,
		secret: []byte(secret),
	}
}

// Submit delivers the report in the background. Failures are logged and never reach the reporter.
func (sink *WebhookModerationSink) Submit(report Report) {
	go func() {
		if err := sink.deliver(report); err != nil {
			log.WithFields(log.Fields{
				"url":      sink.url,
				"reporter": report.ReporterID,
				"target":   report.TargetID,
			}).WithError(err).Warn("Failed to deliver report to moderation webhook")
		}
	}()
}

func (sink *WebhookModerationSink) deliver(report Report) error {
	token, err := sink.signReport(report)
	if err != nil {
		return fmt.Errorf("sign report: %w", err)
	}

	response, err := sink.rest.R().
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(report).
		Post(sink.url)
	if err != nil {
		return err
	}
	if response.IsError() {
		return fmt.Errorf("moderation webhook responded %s", response.Status())
	}
	return nil
}

func (sink *WebhookModerationSink) signReport(report Report) (string, error) {
	issuedAt := report.ReportedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.MapClaims{
		"iss":    common.SoftwareName,
		"sub":    report.ReporterID,
		"target": report.TargetID,
		"iat":    issuedAt.Unix(),
		"exp":    issuedAt.Add(reportTokenLifetime).Unix(),
	})
	return t.SignedString(sink.secret)
}

// VerifyReportToken checks a webhook bearer token against secret and returns the reporter and
// target ids it was issued for. Moderation services written in Go can use it directly.
func VerifyReportToken(tokenStr string, secret []byte) (reporter string, target string, err error) {
	decodedToken, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", "", err
	}

	claims, ok := decodedToken.Claims.(jwt.MapClaims)
	if !ok || !decodedToken.Valid {
		return "", "", errors.New("invalid report token")
	}
	if !claims.VerifyIssuer(common.SoftwareName, true) {
		return "", "", errors.New("report token has wrong issuer")
	}

	reporter, _ = claims["sub"].(string)
	target, _ = claims["target"].(string)
	return reporter, target, nil
}
