package reviewer

import "os"

// readArtifact loads the reviewed deliverable's text and truncates it to
// maxChars. Reviewed artifacts are always one of the engine's own
// md/txt/json/html/css/js formats, so a plain read is faithful — unlike
// upstream evidence (internal/executor.TextExtractor), there is no binary
// case to guard against here.
func readArtifact(path string, maxChars int) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}
	s := string(data)
	if maxChars > 0 && len(s) > maxChars {
		return s[:maxChars], true, nil
	}
	return s, false, nil
}
