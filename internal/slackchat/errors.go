package slackchat

import (
	"errors"
	"strings"

	"github.com/slack-go/slack"

	"github.com/krskas/slack-task-tracker/internal/domain"
)

var accessErrors = []string{"not_in_channel", "channel_not_found"}

// mapError turns Slack's access failures into *domain.NotInChannelError and
// leaves everything else as is.
func mapError(channel string, err error) error {
	if err == nil {
		return nil
	}
	code := ""
	var resp slack.SlackErrorResponse
	if errors.As(err, &resp) {
		code = resp.Err
	}
	for _, ae := range accessErrors {
		if code == ae || (code == "" && strings.Contains(err.Error(), ae)) {
			return &domain.NotInChannelError{Channel: channel, Reason: ae}
		}
	}
	return err
}
