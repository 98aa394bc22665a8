// Package versions reads running container images off client servers and
// records them in the registry.
package versions

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/edvin/clientops/internal/model"
	"github.com/edvin/clientops/internal/registry"
	"github.com/edvin/clientops/internal/remote"
)

const (
	imagesCmd = `docker ps --format '{{.Image}}'`
	osCmd     = `. /etc/os-release && echo "$PRETTY_NAME"`
)

// Report is the outcome of collecting one client. An unreachable client is
// not an error: Reachable is false and Warning says why.
type Report struct {
	Client    string            `json:"client"`
	Reachable bool              `json:"reachable"`
	Versions  map[string]string `json:"versions,omitempty"`
	OS        string            `json:"os,omitempty"`
	Warning   string            `json:"warning,omitempty"`
}

type Collector struct {
	store  registry.Store
	dial   remote.DialFunc
	logger zerolog.Logger
}

func NewCollector(store registry.Store, dial remote.DialFunc, logger zerolog.Logger) *Collector {
	return &Collector{
		store:  store,
		dial:   dial,
		logger: logger.With().Str("component", "versions").Logger(),
	}
}

// Collect reads versions from one client and merges them into its record.
// Connection and command failures leave the registry untouched and come
// back as a warning with a nil error.
func (c *Collector) Collect(ctx context.Context, client string) (Report, error) {
	rep := Report{Client: client}
	log := c.logger.With().Str("client", client).Logger()

	rec, err := c.store.Get(ctx, client)
	if err != nil {
		return rep, err
	}
	if rec.Server.IP == "" {
		rep.Warning = "no server IP recorded"
		log.Warn().Msg(rep.Warning)
		return rep, nil
	}

	sess, err := c.dial(ctx, client, rec.Server.IP)
	if err != nil {
		rep.Warning = fmt.Sprintf("unreachable: %v", err)
		log.Warn().Err(err).Msg("client unreachable, registry unchanged")
		return rep, nil
	}
	defer sess.Close()

	images, err := sess.Run(ctx, imagesCmd)
	if err != nil {
		rep.Warning = fmt.Sprintf("list containers: %v", err)
		log.Warn().Err(err).Msg("could not list containers, registry unchanged")
		return rep, nil
	}
	rep.Reachable = true
	rep.Versions = ParseImages(images)

	if out, err := sess.Run(ctx, osCmd); err == nil {
		rep.OS = strings.TrimSpace(out)
	} else {
		log.Debug().Err(err).Msg("os-release not readable")
	}

	_, err = c.store.Upsert(ctx, client, func(cl *model.Client) error {
		for app, v := range rep.Versions {
			cl.Versions[app] = v
		}
		if rep.OS != "" {
			cl.OS = rep.OS
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("record versions for %s: %w", client, err)
	}

	log.Info().Interface("versions", rep.Versions).Msg("versions recorded")
	return rep, nil
}

// CollectAll collects every client matching f, at most parallelism at a
// time. With no status in f only deployed clients are visited. Reports are
// returned in registry order; hard errors are aggregated.
func (c *Collector) CollectAll(ctx context.Context, f registry.Filter, parallelism int) ([]Report, error) {
	if f.Status == "" {
		f.Status = model.StatusDeployed
	}
	if parallelism < 1 {
		parallelism = 1
	}

	clients, err := c.store.List(ctx, f)
	if err != nil {
		return nil, err
	}

	reports := make([]Report, len(clients))
	errs := make([]error, len(clients))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, cl := range clients {
		g.Go(func() error {
			reports[i], errs[i] = c.Collect(gctx, cl.Name)
			return nil
		})
	}
	_ = g.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return reports, result.ErrorOrNil()
}

var imageApps = []struct {
	match string
	app   string
}{
	{"goauthentik", "authentik"},
	{"authentik", "authentik"},
	{"zitadel", "zitadel"},
	{"nextcloud", "nextcloud"},
	{"collabora", "collabora"},
	{"postgres", "postgres"},
	{"redis", "redis"},
	{"traefik", "traefik"},
}

// ParseImages maps `docker ps` image lines to app versions. Unknown images
// are ignored and the first container of each app wins.
func ParseImages(out string) map[string]string {
	versions := map[string]string{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		repo, tag := splitImage(line)
		for _, m := range imageApps {
			if strings.Contains(repo, m.match) {
				if _, seen := versions[m.app]; !seen {
					versions[m.app] = tag
				}
				break
			}
		}
	}
	return versions
}

func splitImage(image string) (repo, tag string) {
	if i := strings.Index(image, "@"); i >= 0 {
		image = image[:i]
	}
	slash := strings.LastIndex(image, "/")
	if colon := strings.LastIndex(image, ":"); colon > slash {
		return image[:colon], image[colon+1:]
	}
	return image, "latest"
}
