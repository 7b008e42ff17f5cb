package remote

import "fmt"

// Target identifies one repository branch to mirror.
type Target struct {
	Provider string `json:"provider"`
	Owner    string `json:"owner"`
	Repo     string `json:"repo"`
	Branch   string `json:"branch"`
}

// Key is the cache and project key of the target.
func (t Target) Key() string {
	return fmt.Sprintf("remote:%s:%s/%s@%s", t.Provider, t.Owner, t.Repo, t.Branch)
}

// Factory builds the provider for a target.
type Factory func(Target) (Provider, error)

// NewFactory returns a Factory for the "github" and "gitlab" providers
// sharing the same client options.
func NewFactory(o ClientOptions, maxPages int) Factory {
	return func(t Target) (Provider, error) {
		switch t.Provider {
		case "github":
			return NewGitHub(t.Owner, t.Repo, t.Branch, o), nil
		case "gitlab":
			return NewGitLab(t.Owner, t.Repo, t.Branch, maxPages, o), nil
		}
		return nil, fmt.Errorf("remote: unknown provider %q", t.Provider)
	}
}
