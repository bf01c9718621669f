package provider

import "net/url"

// DeriveCopilotHost computes the Copilot upstream host as a pure,
// deterministic function of its inputs with no side effects so it can be
// unit-tested in isolation from environment/startup concerns.
func DeriveCopilotHost(apiTarget, githubServerURL string) string {
	if apiTarget != "" {
		return apiTarget
	}

	if githubServerURL != "" {
		if u, err := url.Parse(githubServerURL); err == nil && u.Hostname() != "" {
			host := u.Hostname()
			switch {
			case host == "github.com":
				return "api.githubcopilot.com"
			case len(host) > len(".ghe.com") && host[len(host)-len(".ghe.com"):] == ".ghe.com":
				sub := host[:len(host)-len(".ghe.com")]
				return "api." + sub + ".ghe.com"
			default:
				return "api.enterprise.githubcopilot.com"
			}
		}
	}

	return "api.githubcopilot.com"
}
