// Package model defines the provider-agnostic contract for talking to
// language models.
//
// A Provider receives a Request (messages, optional tool definitions, an
// optional JSON response format and temperature) and returns a single
// Response. Structured replies are read with Response.Decode.
//
// Adapters for OpenAI and Anthropic live in the sub-packages; MockProvider
// scripts replies for tests.
package model
