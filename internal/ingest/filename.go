package ingest

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Broadcast masters arrive named by the content vendor. The canonical form
// we reconstruct is Title_HID_HD|SD_Episode.ext where HID is the house id
// and movies carry episode 0.
var (
	filenamePattern   = regexp.MustCompile(`(?i)^([a-z0-9 ]+(PART \d{1,2})?)_([a-z]{2,3}\d{6,8})_(HD|SD)_(\d{1,4})$`)
	resolutionPattern = regexp.MustCompile(`(?i)(.*?)_(HD|SD)(.*)`)
	episodePattern    = regexp.MustCompile(`(?i)EP[-_]?(\d{1,4})`)
	partPattern       = regexp.MustCompile(`.*(PART[-_\s]\d{1,4})`)
)

var titleCaser = cases.Title(language.Und)

// CheckFilename reports whether a generated filename (extension optional)
// matches the canonical naming convention. Files that fail land on the
// review sheet instead of the queue.
func CheckFilename(filename string) bool {
	name := strings.SplitN(filename, ".", 2)[0]
	return filenamePattern.MatchString(name)
}

// NormalizeFilename rebuilds the canonical filename from an inventory key.
// Keys that cannot be parsed fall back to their bare base name, which then
// fails CheckFilename and is routed to review.
func NormalizeFilename(key, mediaType string) string {
	base := path.Base(filepath.ToSlash(key))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	var hid, title, res, episode string
	var err error
	switch mediaType {
	case "gec":
		hid, title, res, episode, err = gecFields(stem)
	case "movies":
		hid, title, res, err = movieFields(stem)
		episode = "0"
	default:
		err = fmt.Errorf("unknown media type %q", mediaType)
	}
	if err != nil {
		return stem
	}
	return fmt.Sprintf("%s_%s_%s_%s%s", titleCaser.String(strings.ToLower(title)), strings.ToUpper(hid), strings.ToUpper(res), episode, strings.ToLower(ext))
}

// movieFields splits Hid_Some_Movie_Name_HD... into its house id, title, and
// resolution marker.
func movieFields(stem string) (hid, title, res string, err error) {
	m := resolutionPattern.FindStringSubmatch(stem)
	if m == nil {
		return "", "", "", fmt.Errorf("no HD/SD marker in %q", stem)
	}
	left := strings.TrimSpace(m[1])
	tokens := strings.Split(left, "_")
	if len(tokens) < 2 {
		return "", "", "", fmt.Errorf("no title tokens in %q", stem)
	}
	return tokens[0], strings.Join(tokens[1:], " "), strings.ToUpper(m[2]), nil
}

// gecFields parses episodic general-entertainment names, which carry an
// EP<number> marker and may carry a PART suffix.
func gecFields(stem string) (hid, title, res, episode string, err error) {
	tokens := strings.Split(stem, "_")
	if len(tokens) < 2 {
		return "", "", "", "", fmt.Errorf("no house id in %q", stem)
	}
	hid = tokens[0]

	res = "SD"
	if strings.Contains(strings.ToUpper(hid), "H") || strings.Contains(strings.ToUpper(stem), "HD") {
		res = "HD"
	}

	em := episodePattern.FindStringSubmatch(stem)
	if em == nil {
		return "", "", "", "", fmt.Errorf("no episode marker in %q", stem)
	}
	episode = em[1]

	titlePattern, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(hid) + `_(.*)[-_\s]EP`)
	if err != nil {
		return "", "", "", "", err
	}
	tm := titlePattern.FindStringSubmatch(stem)
	if tm == nil {
		return "", "", "", "", fmt.Errorf("no title segment in %q", stem)
	}
	title = strings.NewReplacer("-", " ", "_", " ").Replace(tm[1])

	if pm := partPattern.FindStringSubmatch(stem); pm != nil {
		part := strings.NewReplacer("-", " ", "_", " ").Replace(pm[1])
		title = title + " " + part
	}
	return hid, strings.TrimSpace(title), res, episode, nil
}
