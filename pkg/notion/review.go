package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// ReviewField is one enriched field shown to a reviewer.
type ReviewField struct {
	Label      string
	Value      string
	Confidence string
	Source     string
}

// ReviewEntry is an institution queued for manual review, usually because
// providers disagreed or every field stayed below medium confidence.
type ReviewEntry struct {
	Institution string
	RunID       string
	Reason      string
	Fields      []ReviewField
}

// BuildReviewProperties converts a review entry to Notion page properties.
// The institution name becomes the title, Status is always "Pending", and
// each field is rendered as "value (confidence, source)" rich text under its
// spreadsheet column label.
func BuildReviewProperties(entry ReviewEntry) notionapi.Properties {
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: entry.Institution}},
			},
		},
		"Status": notionapi.StatusProperty{
			Status: notionapi.Status{
				Name: "Pending",
			},
		},
	}

	if entry.RunID != "" {
		props["Run"] = richText(entry.RunID)
	}
	if entry.Reason != "" {
		props["Reason"] = richText(entry.Reason)
	}

	for _, f := range entry.Fields {
		if f.Value == "" {
			continue
		}
		rendered := f.Value
		if f.Confidence != "" {
			rendered = fmt.Sprintf("%s (%s, %s)", f.Value, f.Confidence, f.Source)
		}
		props[f.Label] = richText(rendered)
	}

	return props
}

func richText(content string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: content}},
		},
	}
}

// findReviewPage returns the existing review page for an institution, or nil
// when none exists yet.
func findReviewPage(ctx context.Context, c Client, dbID, institution string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: "Name",
			Title: &notionapi.TextFilterCondition{
				Equals: institution,
			},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("notion: find review page for %s", institution))
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// ExportReview pushes review entries to the review database. Entries whose
// institution already has a page get that page refreshed instead of a
// duplicate. Returns how many pages were created and updated.
func ExportReview(ctx context.Context, c Client, dbID string, entries []ReviewEntry) (created, updated int, err error) {
	for _, entry := range entries {
		if ctx.Err() != nil {
			return created, updated, eris.Wrap(ctx.Err(), "notion: export review cancelled")
		}

		existing, err := findReviewPage(ctx, c, dbID, entry.Institution)
		if err != nil {
			return created, updated, err
		}

		props := BuildReviewProperties(entry)

		if existing != nil {
			if _, err := c.UpdatePage(ctx, string(existing.ID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
				return created, updated, eris.Wrap(err, fmt.Sprintf("notion: refresh review page for %s", entry.Institution))
			}
			updated++
			continue
		}

		req := &notionapi.PageCreateRequest{
			Parent: notionapi.Parent{
				Type:       notionapi.ParentTypeDatabaseID,
				DatabaseID: notionapi.DatabaseID(dbID),
			},
			Properties: props,
		}
		if _, err := c.CreatePage(ctx, req); err != nil {
			return created, updated, eris.Wrap(err, fmt.Sprintf("notion: create review page for %s", entry.Institution))
		}
		created++
	}

	return created, updated, nil
}
