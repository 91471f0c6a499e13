package vector

import (
	"context"

	"github.com/hupe1980/teamwork/tool"
)

// Tool names under which Tools registers the vector store tools.
const (
	SaveName   = "saveDocumentInVectorStore"
	SearchName = "searchInVectorStore"
)

const defaultLimit = 3

type saveArgs struct {
	Document string `json:"document" description:"The document to save"`
}

type searchArgs struct {
	Query string `json:"query" description:"The query to search for"`
	Limit int    `json:"limit,omitempty" description:"Maximum number of results, 3 if omitted"`
}

// Tools returns the save and search tools operating on s.
func (s *Store) Tools() map[string]tool.Tool {
	return map[string]tool.Tool{
		SaveName:   s.SaveTool(),
		SearchName: s.SearchTool(),
	}
}

// SaveTool stores a document and returns its id.
func (s *Store) SaveTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Save a document in the vector store",
		saveArgs{},
		func(ctx context.Context, args map[string]any, _ tool.Context) (any, error) {
			var in saveArgs
			if err := tool.Bind(args, &in); err != nil {
				return nil, err
			}
			id, err := s.Add(ctx, in.Document)
			if err != nil {
				return nil, err
			}
			return "Document saved with id " + id, nil
		},
	)
}

// SearchTool returns the best matching documents as JSON.
func (s *Store) SearchTool() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Search for similar documents in the vector store",
		searchArgs{},
		func(ctx context.Context, args map[string]any, _ tool.Context) (any, error) {
			var in searchArgs
			if err := tool.Bind(args, &in); err != nil {
				return nil, err
			}
			if in.Limit <= 0 {
				in.Limit = defaultLimit
			}
			return s.Search(ctx, in.Query, in.Limit)
		},
	)
}
