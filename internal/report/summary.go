// Package report renders the post-run deployment summary: what was
// published, what stayed intact, and where the artifacts live.
package report

import (
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/adamihamza/lambda-ci/internal/builder"
	"github.com/adamihamza/lambda-ci/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
)

var (
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	publishState = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	changedState = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	intactState  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	versionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
)

// Summary is everything the report needs about a finished run.
type Summary struct {
	FunctionName string
	LayerName    string
	Bucket       string
	RevisionTag  string
	Keys         pipeline.Keys
	Result       pipeline.Result
}

// Render writes the human-readable deployment summary.
func Render(w io.Writer, s Summary) {
	region := s.Result.Remote.Region()
	consoleBase := fmt.Sprintf("https://console.aws.amazon.com/lambda/home?region=%s#", region)
	bucketBase := fmt.Sprintf("https://s3.console.aws.amazon.com/s3/buckets/%s?prefix=", s.Bucket)

	functionURL := fmt.Sprintf("%s/functions/%s/versions/%s?tab=code", consoleBase, s.FunctionName, s.Result.PublishedVersion)
	layerURL := fmt.Sprintf("%s/layers/%s/versions/%d", consoleBase, s.LayerName, s.Result.LayerVersion)

	changes := s.Result.Changes
	functionState := stateWord(changes.Any(), "PUBLISHED", "INTACT", publishState)
	layerState := stateWord(changes.DepsChanged, "PUBLISHED", "INTACT", publishState)
	codeState := stateWord(changes.CodeChanged, "CHANGED", "INTACT", changedState)
	depsState := stateWord(changes.DepsChanged, "CHANGED", "INTACT", changedState)

	codeKey, codeRevision := artifactLocation(s, builder.KindCode, changes.CodeChanged, s.Result.Remote.RevisionTag)
	depsKey, depsRevision := artifactLocation(s, builder.KindDependencies, changes.DepsChanged, s.Result.RemoteLayer.RevisionTag)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Currently published:")
	fmt.Fprintln(w, "====================")
	fmt.Fprintf(w, "%s %s [state=%s, version=%s]\n",
		labelStyle.Render("Lambda:"), functionURL, functionState, versionStyle.Render(s.Result.PublishedVersion))
	fmt.Fprintf(w, "%s  %s [state=%s, version=%s]\n",
		labelStyle.Render("Layer:"), layerURL, layerState, versionStyle.Render(strconv.FormatInt(s.Result.LayerVersion, 10)))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Artifacts:")
	fmt.Fprintln(w, "==========")
	fmt.Fprintf(w, "%s  %s [state=%s, version=%s]\n",
		labelStyle.Render("Source code:"), bucketBase+url.QueryEscape(codeKey), codeState, versionStyle.Render(codeRevision))
	fmt.Fprintf(w, "%s %s [state=%s, version=%s]\n",
		labelStyle.Render("Dependencies:"), bucketBase+url.QueryEscape(depsKey), depsState, versionStyle.Render(depsRevision))
}

// artifactLocation picks the store key and revision to show: the new
// revision when the kind changed, the previously live one otherwise.
func artifactLocation(s Summary, kind builder.ArtifactKind, changed bool, liveRevision string) (string, string) {
	if changed {
		return s.Keys.Revision(s.RevisionTag, kind), s.RevisionTag
	}
	return s.Keys.Revision(liveRevision, kind), liveRevision
}

func stateWord(active bool, activeWord, idleWord string, activeStyle lipgloss.Style) string {
	if active {
		return activeStyle.Render(activeWord)
	}
	return intactState.Render(idleWord)
}
