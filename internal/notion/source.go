package notion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jomei/notionapi"

	"github.com/schaermu/notion2blog/internal/config"
	"github.com/schaermu/notion2blog/internal/post"
)

const (
	// TitleProperty is the fixed name of the title property.
	TitleProperty = "Name"

	permalinkLayout = "2006-01-02-03-04-05"

	queryPageSize = 100
)

// FetchError reports a failed listing of eligible documents.
type FetchError struct {
	DatabaseID string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch the blog posts from database %s: %v", e.DatabaseID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Querier runs a single database query. notionapi.DatabaseService satisfies it.
type Querier interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Source lists the eligible blog posts of a database.
type Source struct {
	query  Querier
	props  config.PropertyNames
	loc    *time.Location
	logger *slog.Logger
}

// NewSource creates a Source. Timestamps are formatted in loc.
func NewSource(query Querier, props config.PropertyNames, loc *time.Location, logger *slog.Logger) *Source {
	if loc == nil {
		loc = time.UTC
	}
	return &Source{
		query:  query,
		props:  props,
		loc:    loc,
		logger: logger,
	}
}

// FetchEligible returns every record with the exclude checkbox unset and the
// include checkbox set, in source order. Partial records are dropped.
func (s *Source) FetchEligible(ctx context.Context, databaseID string) ([]post.PageRecord, error) {
	req := &notionapi.DatabaseQueryRequest{
		// checkbox conditions omit false values, so "unset" is spelled does_not_equal true
		Filter: notionapi.AndCompoundFilter{
			notionapi.PropertyFilter{Property: s.props.ExcludeCheckbox, Checkbox: &notionapi.CheckboxFilterCondition{DoesNotEqual: true}},
			notionapi.PropertyFilter{Property: s.props.IncludeCheckbox, Checkbox: &notionapi.CheckboxFilterCondition{Equals: true}},
		},
		PageSize: queryPageSize,
	}

	var pages []notionapi.Page
	for {
		res, err := s.query.Query(ctx, notionapi.DatabaseID(databaseID), req)
		if err != nil {
			return nil, &FetchError{DatabaseID: databaseID, Err: err}
		}

		for _, p := range res.Results {
			if isPartial(p) {
				s.logger.Debug("dropping partial record", "id", p.ID)
				continue
			}
			pages = append(pages, p)
		}

		if !res.HasMore || res.NextCursor == "" {
			break
		}
		req.StartCursor = res.NextCursor
	}

	records := make([]post.PageRecord, 0, len(pages))
	for _, p := range pages {
		records = append(records, s.record(p))
	}

	s.logger.Info("fetched eligible documents", "database_id", databaseID, "count", len(records))
	return records, nil
}

// isPartial reports whether a query result lacks the fields of a full page.
func isPartial(p notionapi.Page) bool {
	return p.URL == ""
}

func (s *Source) record(p notionapi.Page) post.PageRecord {
	return post.PageRecord{
		ID:        string(p.ID),
		Title:     s.title(p),
		Category:  s.category(p),
		Permalink: s.permalink(p),
		Date:      p.LastEditedTime.In(s.loc).Format(post.DateLayout),
		Tags:      s.tags(p),
	}
}

func (s *Source) permalink(p notionapi.Page) string {
	if prop, ok := GetProperty[*notionapi.RichTextProperty](p, s.props.Permalink); ok {
		if len(prop.RichText) > 0 && prop.RichText[0].PlainText != "" {
			return prop.RichText[0].PlainText
		}
	}
	return p.CreatedTime.In(s.loc).Format(permalinkLayout)
}

func (s *Source) tags(p notionapi.Page) []string {
	prop, ok := GetProperty[*notionapi.MultiSelectProperty](p, s.props.Tag)
	if !ok {
		return []string{}
	}
	tags := make([]string, 0, len(prop.MultiSelect))
	for _, opt := range prop.MultiSelect {
		tags = append(tags, opt.Name)
	}
	return tags
}

func (s *Source) title(p notionapi.Page) string {
	prop, ok := GetProperty[*notionapi.TitleProperty](p, TitleProperty)
	if !ok || len(prop.Title) == 0 {
		return ""
	}
	return prop.Title[0].PlainText
}

func (s *Source) category(p notionapi.Page) string {
	prop, ok := GetProperty[*notionapi.SelectProperty](p, s.props.Category)
	if !ok {
		return ""
	}
	return prop.Select.Name
}

// GetProperty returns the property called name when it exists and decoded as
// T. A missing property or one of another type yields the zero T and false.
func GetProperty[T notionapi.Property](p notionapi.Page, name string) (T, bool) {
	var zero T
	prop, ok := p.Properties[name]
	if !ok {
		return zero, false
	}
	typed, ok := prop.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
