package registry

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/samber/lo"

	"github.com/linkly/admin/internal"
)

const (
	maxTitleLen = 120
	maxVariants = 20
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9-]{3,48}$`)
	variantPattern = regexp.MustCompile(`^[a-z0-9_-]{1,32}$`)

	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]+`)
	hyphenRuns   = regexp.MustCompile(`-{2,}`)
)

// slugFromTitle derives a slug the same way a user would type one:
// lowercase, hyphens for spaces and other junk, runs collapsed. The
// result still has to pass slugPattern like any caller-supplied slug.
func slugFromTitle(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = nonSlugChars.ReplaceAllString(slug, "-")
	slug = hyphenRuns.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 48 {
		slug = strings.TrimRight(slug[:48], "-")
	}
	return slug
}

// normalize validates a create payload and fills in derived values.
// It runs before anything is written, so a ValidationError never leaves
// partial state behind.
func normalize(in internal.NewLink) (internal.NewLink, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return in, internal.Validationf("title is required")
	}
	if len(in.Title) > maxTitleLen {
		return in, internal.Validationf("title must be at most %d characters", maxTitleLen)
	}

	if strings.TrimSpace(in.DestinationURL) == "" {
		return in, internal.Validationf("destinationUrl is required")
	}
	dest, err := url.Parse(in.DestinationURL)
	if err != nil || !dest.IsAbs() || dest.Host == "" ||
		(dest.Scheme != "http" && dest.Scheme != "https") {
		return in, internal.Validationf("destinationUrl must be an absolute http(s) URL")
	}

	derived := false
	if in.Slug == "" {
		in.Slug = slugFromTitle(in.Title)
		derived = true
	} else {
		in.Slug = strings.ToLower(strings.TrimSpace(in.Slug))
	}
	// Derived slugs obey the same syntax rule as caller-supplied ones.
	if !slugPattern.MatchString(in.Slug) {
		if derived {
			return in, internal.Validationf("cannot derive a valid slug from title %q, supply one explicitly", in.Title)
		}
		return in, internal.Validationf("slug must match %s", slugPattern.String())
	}

	variants := lo.Map(in.Variants, func(v string, _ int) string {
		return strings.TrimSpace(v)
	})
	variants = lo.Uniq(lo.Compact(variants))
	for _, v := range variants {
		if !variantPattern.MatchString(v) {
			return in, internal.Validationf("invalid variant %q", v)
		}
	}
	if !lo.Contains(variants, "default") {
		variants = append([]string{"default"}, variants...)
	}
	if len(variants) > maxVariants {
		return in, internal.Validationf("variants cannot exceed %d", maxVariants)
	}
	in.Variants = variants

	return in, nil
}
