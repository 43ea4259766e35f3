// Package ai turns a natural-language description into a form spec through
// the generative text collaborator.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/mbolis/form-forge/config"
	"github.com/mbolis/form-forge/model"
	"google.golang.org/genai"
)

const Model = "gemini-2.5-flash"

const promptTemplate = "You are an expert form designer. Given this description, generate a concise form structure suitable for a SaaS form builder. Use practical defaults.\n\n" +
	"STRICT OUTPUT REQUIREMENTS:\n" +
	"- Return ONLY JSON (no code fences, no prose).\n" +
	"- Match the provided schema exactly.\n\n" +
	"Description: %s"

type Generator interface {
	Generate(ctx context.Context, description string) (model.FormSpec, error)
}

type Gemini struct {
	client *genai.Client
}

func NewGemini(ctx context.Context, cfg config.GeminiConfig) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: client}, nil
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"title":       {Type: genai.TypeString},
		"description": {Type: genai.TypeString, Nullable: genai.Ptr(true)},
		"fields": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type":        {Type: genai.TypeString, Enum: model.FieldTypeNames()},
					"label":       {Type: genai.TypeString},
					"placeholder": {Type: genai.TypeString, Nullable: genai.Ptr(true)},
					"required":    {Type: genai.TypeBoolean, Nullable: genai.Ptr(true)},
					"options": {
						Type:     genai.TypeArray,
						Items:    &genai.Schema{Type: genai.TypeString},
						Nullable: genai.Ptr(true),
					},
				},
				Required: []string{"type", "label"},
			},
		},
	},
	Required: []string{"title", "fields"},
}

func (g *Gemini) Generate(ctx context.Context, description string) (model.FormSpec, error) {
	resp, err := g.client.Models.GenerateContent(ctx, Model,
		genai.Text(fmt.Sprintf(promptTemplate, description)),
		&genai.GenerateContentConfig{
			ThinkingConfig:   &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
			ResponseMIMEType: "application/json",
			ResponseSchema:   responseSchema,
		})
	if err != nil {
		return model.FormSpec{}, err
	}
	return ParseSpec(resp.Text())
}

var reFenceOpen = regexp.MustCompile("^```[a-zA-Z]*\n?")
var reFenceClose = regexp.MustCompile("```\\s*$")

// ParseSpec decodes the collaborator's JSON output into a validated FormSpec.
// Code fences are stripped first; some model versions wrap the JSON anyway.
func ParseSpec(text string) (model.FormSpec, error) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = reFenceOpen.ReplaceAllString(text, "")
		text = reFenceClose.ReplaceAllString(text, "")
	}

	var spec model.FormSpec
	err := json.Unmarshal([]byte(text), &spec)
	if err != nil {
		return model.FormSpec{}, fmt.Errorf("invalid generator response: %w", err)
	}
	err = spec.Validate()
	if err != nil {
		return model.FormSpec{}, fmt.Errorf("generator output failed validation: %w", err)
	}
	return spec, nil
}
