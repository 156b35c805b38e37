package notify

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/slack-go/slack"
)

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	WebhookURL string
	Username   string

	client *http.Client
}

// NewSlack returns a notifier posting to webhookURL.
func NewSlack(webhookURL, username string) (*Slack, error) {
	if webhookURL == "" {
		return nil, errors.New("slack webhook URL must be specified")
	}
	return &Slack{
		WebhookURL: webhookURL,
		Username:   username,
		client:     initHTTPClient(defaultTimeout),
	}, nil
}

// Send implements followerwatch.Notifier.
func (s *Slack) Send(ctx context.Context, message string) error {
	err := slack.PostWebhookCustomHTTPContext(ctx, s.WebhookURL, s.client, &slack.WebhookMessage{
		Username: s.Username,
		Text:     message,
	})
	return errors.Wrap(err, "error posting to slack webhook")
}

// Discord posts messages to a Discord channel webhook.
type Discord struct {
	WebhookID string
	Username  string

	token   string
	session *discordgo.Session
}

// NewDiscord returns a notifier for a webhook URL of the form
// https://discord.com/api/webhooks/<id>/<token>.
func NewDiscord(webhookURL, username string) (*Discord, error) {
	id, token, err := parseDiscordWebhook(webhookURL)
	if err != nil {
		return nil, err
	}
	// Webhook execution is authorised by the token in the URL, so the
	// session needs no bot token.
	session, err := discordgo.New("")
	if err != nil {
		return nil, errors.Wrap(err, "error creating discord session")
	}
	session.Client = initHTTPClient(defaultTimeout)
	return &Discord{
		WebhookID: id,
		Username:  username,
		token:     token,
		session:   session,
	}, nil
}

func parseDiscordWebhook(raw string) (id, token string, err error) {
	if raw == "" {
		return "", "", errors.New("discord webhook URL must be specified")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(err, "invalid discord webhook URL")
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] == "webhooks" && parts[i+1] != "" && parts[i+2] != "" {
			return parts[i+1], parts[i+2], nil
		}
	}
	return "", "", errors.Errorf("discord webhook URL %q has no webhooks/<id>/<token> path", raw)
}

// Send implements followerwatch.Notifier.
func (d *Discord) Send(ctx context.Context, message string) error {
	_, err := d.session.WebhookExecute(d.WebhookID, d.token, false, &discordgo.WebhookParams{
		Content:  message,
		Username: d.Username,
	}, discordgo.WithContext(ctx))
	return errors.Wrap(err, "error executing discord webhook")
}
