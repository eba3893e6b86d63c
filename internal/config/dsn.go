package config

import (
	"net/url"
	"strings"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
)

// FromDSN parses a single connection string of the form
// https://{public_id}@{host}{path}/{project_id} into a Config with every
// other field defaulted. It is the primary configuration entry point for
// embedding applications that do not want to set individual fields.
func FromDSN(dsn string) (Config, error) {
	cfg := Default()

	u, err := url.Parse(dsn)
	if err != nil {
		return Config{}, agenterrors.NewConfigError("dsn is not a valid URL: " + err.Error())
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Config{}, agenterrors.NewConfigError("dsn must use http or https")
	}

	if u.User == nil || u.User.Username() == "" {
		return Config{}, agenterrors.NewConfigError("dsn must embed public_id as the userinfo component")
	}
	cfg.PublicID = u.User.Username()

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return Config{}, agenterrors.NewConfigError("dsn must end with /{project_id}")
	}
	segments := strings.Split(path, "/")
	cfg.ProjectID = segments[len(segments)-1]
	if cfg.ProjectID == "" {
		return Config{}, agenterrors.NewConfigError("dsn project_id segment is empty")
	}

	remainder := strings.TrimSuffix(path, cfg.ProjectID)
	remainder = strings.Trim(remainder, "/")

	endpoint := url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   remainder,
	}
	cfg.EndpointURL = endpoint.String()

	return cfg, nil
}
