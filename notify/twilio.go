package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// TwilioSMSSender sends SMS messages to one phone number.
type TwilioSMSSender struct {
	AccountSID string
	Sender     string
	To         string

	authToken string
	apiBase   string
	client    *resty.Client
	log       *zap.SugaredLogger
}

// TwilioOption configures a TwilioSMSSender.
type TwilioOption func(*TwilioSMSSender)

// WithTwilioLogger sets the logger the sender uses.
func WithTwilioLogger(logger *zap.SugaredLogger) TwilioOption {
	return func(tss *TwilioSMSSender) {
		tss.log = logger
	}
}

// WithTwilioAPIBase replaces the Twilio API base URL.
func WithTwilioAPIBase(base string) TwilioOption {
	return func(tss *TwilioSMSSender) {
		tss.apiBase = base
	}
}

// NewTwilioSMSSender returns a sender texting to from the Twilio number
// sender, authenticating as the account sid with token.
func NewTwilioSMSSender(sid, token, sender, to string, options ...TwilioOption) (*TwilioSMSSender, error) {
	if sid == "" || token == "" {
		return nil, errors.New("twilio account sid and auth token must be specified")
	}
	if sender == "" || to == "" {
		return nil, errors.New("twilio sender and recipient phone numbers must be specified")
	}
	tss := &TwilioSMSSender{
		AccountSID: sid,
		Sender:     sender,
		To:         to,
		authToken:  token,
		apiBase:    twilioAPIBase,
		log:        zap.NewNop().Sugar(),
	}
	for _, o := range options {
		o(tss)
	}
	tss.client = resty.NewWithClient(initHTTPClient(defaultTimeout)).
		SetBasicAuth(sid, token).
		SetHeader("Accept", "application/json")
	return tss, nil
}

// Send implements followerwatch.Notifier.
func (tss *TwilioSMSSender) Send(ctx context.Context, message string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", tss.apiBase, tss.AccountSID)
	resp, err := tss.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"To":   tss.To,
			"From": tss.Sender,
			"Body": message,
		}).
		Post(endpoint)
	if err != nil {
		return errors.Wrap(err, "error reaching Twilio API")
	}

	var apiResponse struct {
		MessageSID    string `json:"sid"`
		MessageStatus string `json:"status"`
		To            string `json:"to"`
		ErrCode       int    `json:"code"`
		ErrMessage    string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &apiResponse); err != nil {
		return errors.Wrapf(err, "error decoding Twilio response (%s)", resp.Status())
	}
	if resp.StatusCode() != http.StatusCreated {
		return errors.Errorf("Twilio error %d: %s", apiResponse.ErrCode, apiResponse.ErrMessage)
	}
	if isNotOKMessageStatus(apiResponse.MessageStatus) {
		return errors.Errorf("bad message status: %s", apiResponse.MessageStatus)
	}
	tss.log.Infow("sent SMS",
		"message_sid", apiResponse.MessageSID,
		"message_status", apiResponse.MessageStatus,
		"message_to", apiResponse.To)
	return nil
}

func isNotOKMessageStatus(status string) bool {
	okStatuses := []string{"accepted", "queued", "sending", "sent", "delivered"}
	for _, s := range okStatuses {
		if status == s {
			return false
		}
	}
	return true
}
