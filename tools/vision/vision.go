// Package vision provides an image analysis tool backed by the invoking
// agent's model provider.
package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/hupe1980/teamwork/core"
	"github.com/hupe1980/teamwork/model"
	"github.com/hupe1980/teamwork/tool"
)

// Name is the conventional registration key of the tool.
const Name = "visionTool"

var responseFormat = &model.ResponseFormat{
	Name: "vision_request",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type": map[string]any{"type": "string", "enum": []string{"success"}},
							"text": map[string]any{"type": "string"},
						},
						"required":             []string{"type", "text"},
						"additionalProperties": false,
					},
					map[string]any{
						"type": "object",
						"properties": map[string]any{
							"type":  map[string]any{"type": "string", "enum": []string{"failure"}},
							"error": map[string]any{"type": "string"},
						},
						"required":             []string{"type", "error"},
						"additionalProperties": false,
					},
				},
			},
		},
		"required":             []string{"response"},
		"additionalProperties": false,
	},
}

type args struct {
	ImagePathURL string `json:"imagePathUrl" description:"Absolute path to image on disk or URL"`
	Analysis     string `json:"analysis" description:"Description of what to analyze and extract from the image, such as text content, layout, font styles, and any specific data fields"`
	Detail       string `json:"detail,omitempty" enum:"low,high" default:"high" description:"Fidelity of the analysis. For detailed analysis, use \"high\". For general questions, use \"low\"."`
}

type result struct {
	Response struct {
		Type  string `json:"type"`
		Text  string `json:"text"`
		Error string `json:"error"`
	} `json:"response"`
}

// New returns the vision tool. It sends the image to the provider found in
// its tool.Context, so it only works for agents with a vision capable model.
func New() tool.Tool {
	return tool.NewFunctionToolFromStruct(
		"Tool for analyzing and OCR the pictures",
		args{},
		func(ctx context.Context, raw map[string]any, tc tool.Context) (any, error) {
			var in args
			if err := tool.Bind(raw, &in); err != nil {
				return nil, err
			}
			if tc.Provider == nil {
				return nil, errors.New("no model provider available")
			}

			url, err := imageURL(in.ImagePathURL)
			if err != nil {
				return nil, err
			}

			return analyze(ctx, tc.Provider, in.Analysis, url, in.Detail)
		},
	)
}

func analyze(ctx context.Context, provider model.Provider, analysis, url, detail string) (string, error) {
	msg := core.Message{
		Role: core.RoleUser,
		Parts: []core.Part{
			core.TextPart{Text: analysis + ". Use your built-in OCR capabilities."},
			core.ImagePart{URL: url, Detail: detail},
		},
	}

	resp, err := provider.Completions(ctx, model.Request{
		Messages:       []core.Message{msg},
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return "", err
	}

	var out result
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.Response.Type != "success" {
		return "", fmt.Errorf("image analysis failed: %s", out.Response.Error)
	}

	return out.Response.Text, nil
}

// imageURL passes http(s) URLs through and inlines local files as data URLs.
func imageURL(pathOrURL string) (string, error) {
	if strings.HasPrefix(pathOrURL, "http://") || strings.HasPrefix(pathOrURL, "https://") || strings.HasPrefix(pathOrURL, "data:") {
		return pathOrURL, nil
	}

	data, err := os.ReadFile(pathOrURL)
	if err != nil {
		return "", err
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(pathOrURL)))
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}

	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)), nil
}
