package cookies

import (
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Extract reads the page's cookie jar into neutral records. Cookie creation
// and last-access times are stamped at extraction; the browser does not
// expose them.
func (m *Manager) Extract(page *rod.Page) ([]Cookie, error) {
	raw, err := page.Cookies(nil)
	if err != nil {
		return nil, err
	}

	now := m.now()
	out := make([]Cookie, 0, len(raw))
	for _, c := range raw {
		cookie := Cookie{
			Name:         c.Name,
			Value:        c.Value,
			Domain:       c.Domain,
			Path:         c.Path,
			HTTPOnly:     c.HTTPOnly,
			Secure:       c.Secure,
			SameSite:     string(c.SameSite),
			CreationTime: now,
			LastAccess:   now,
		}
		// CDP reports -1 for session cookies.
		if c.Expires > 0 {
			expires := time.Unix(int64(c.Expires), 0)
			cookie.Expires = &expires
		}
		out = append(out, cookie)
	}

	log.Debug().Int("count", len(out)).Msg("Extracted cookies from page")
	return out, nil
}

// Install writes non-expired cookies into the page's jar.
func (m *Manager) Install(page *rod.Page, cookies []Cookie) error {
	now := m.now()
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))

	for _, c := range cookies {
		if c.Expired(now) {
			continue
		}
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != "" {
			param.SameSite = proto.NetworkCookieSameSite(c.SameSite)
		}
		if c.Expires != nil {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		params = append(params, param)
	}

	if len(params) == 0 {
		return nil
	}
	if err := page.SetCookies(params); err != nil {
		return err
	}

	log.Debug().Int("count", len(params)).Msg("Installed cookies into page")
	return nil
}
