package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/tagwatch/tagwatch/internal/recipient"
)

// parseSeedRecipients parses DEV_RECIPIENTS, a comma separated list of
// device:user:token entries with an optional :platform suffix (FCM default).
func parseSeedRecipients(raw string) ([]*recipient.Recipient, error) {
	var out []*recipient.Recipient
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("recipient %q: want device:user:token[:platform]", entry)
		}
		for _, p := range parts[:3] {
			if strings.TrimSpace(p) == "" {
				return nil, fmt.Errorf("recipient %q: empty field", entry)
			}
		}

		platform := recipient.PlatformFCM
		if len(parts) == 4 {
			switch recipient.Platform(strings.ToUpper(parts[3])) {
			case recipient.PlatformFCM:
			case recipient.PlatformAPNS:
				platform = recipient.PlatformAPNS
			default:
				return nil, fmt.Errorf("recipient %q: unknown platform %q", entry, parts[3])
			}
		}

		token := strings.TrimSpace(parts[2])
		out = append(out, &recipient.Recipient{
			DeviceID:  strings.TrimSpace(parts[0]),
			UserID:    strings.TrimSpace(parts[1]),
			PushToken: &token,
			Platform:  platform,
			Active:    true,
		})
	}
	return out, nil
}

// seedRecipients registers recipients for local development.
func seedRecipients(ctx context.Context, repo recipient.Repository, raw string) (int, error) {
	recipients, err := parseSeedRecipients(raw)
	if err != nil {
		return 0, err
	}
	for _, r := range recipients {
		if _, err := repo.Upsert(ctx, r); err != nil {
			return 0, fmt.Errorf("seed recipient %s/%s: %w", r.DeviceID, r.UserID, err)
		}
	}
	return len(recipients), nil
}
