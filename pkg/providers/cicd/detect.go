package cicd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/openfroyo/launchpad/pkg/process"
)

// ErrNoRepository means the repository could not be inferred.
var ErrNoRepository = errors.New("repository not detected")

// DetectRepository reads the origin remote of the git checkout containing dir,
// then falls back to asking gh about the current directory.
func (g *GitHub) DetectRepository(ctx context.Context, dir string) (Repository, error) {
	repo, err := originRepository(dir)
	if err == nil {
		return repo, nil
	}
	g.logger.Debug().Err(err).Msg("origin remote not usable")

	res, err := process.RunOrFail(ctx, g.runner, process.Command{
		Name: "gh",
		Args: []string{"repo", "view", "--json", "owner,name"},
		Dir:  dir,
	})
	if err != nil {
		return Repository{}, fmt.Errorf("%w: %w", ErrNoRepository, err)
	}
	var view struct {
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal([]byte(res.Stdout), &view); err != nil || view.Owner.Login == "" || view.Name == "" {
		return Repository{}, fmt.Errorf("%w: unexpected gh output", ErrNoRepository)
	}
	return Repository{Owner: view.Owner.Login, Name: view.Name}, nil
}

func originRepository(dir string) (Repository, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return Repository{}, err
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return Repository{}, err
	}
	for _, u := range remote.Config().URLs {
		if r, ok := ParseRemoteURL(u); ok {
			return r, nil
		}
	}
	return Repository{}, ErrNoRepository
}

// ParseRemoteURL extracts owner and name from a GitHub remote in SSH, scp-like
// or HTTPS form.
func ParseRemoteURL(raw string) (Repository, bool) {
	raw = strings.TrimSpace(raw)
	var path string
	switch {
	case strings.HasPrefix(raw, "git@github.com:"):
		path = strings.TrimPrefix(raw, "git@github.com:")
	default:
		u, err := url.Parse(raw)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return Repository{}, false
		}
		path = u.Path
	}
	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	owner, name, ok := strings.Cut(path, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, false
	}
	return Repository{Owner: owner, Name: name}, true
}
