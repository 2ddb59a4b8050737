package hypr

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

type versionReply struct {
	Tag    string `json:"tag"`
	Commit string `json:"commit"`
}

// Version reports the running compositor's release tag, falling back to the
// short commit for untagged builds.
func Version(ctx context.Context) (string, error) {
	output, err := runHyprctlOutput(ctx, "-j", "version")
	if err != nil {
		return "", err
	}

	var reply versionReply
	if err := sonic.Unmarshal(output, &reply); err != nil {
		return "", fmt.Errorf("decode hyprctl version json: %w", err)
	}
	if tag := strings.TrimSpace(reply.Tag); tag != "" {
		return tag, nil
	}
	commit := strings.TrimSpace(reply.Commit)
	if commit == "" {
		return "", fmt.Errorf("hyprctl version returned no tag or commit")
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return commit, nil
}
