package tools

import (
	"context"
	"math/rand"
)

var sampleNames = []string{"Иван", "Мария", "Сергей", "Анна", "Дмитрий", "Елена"}

// RegisterUserData registers the one example tool named by the data model:
// get_user_data. Reimplemented from original_source/chat_app/tools/user_data.py's
// random-profile stub without translating it verbatim — the scenario
// engine's get_user_data special case (C6 §4.6.2) backfills the profile
// from whatever this returns.
func RegisterUserData(r *Registry) {
	r.Register(ToolSpec{
		Name:        "get_user_data",
		Description: "Returns the current user's profile (name, age).",
		OutputSchema: map[string]interface{}{
			"properties": map[string]interface{}{
				"name": map[string]interface{}{"type": "string"},
				"age":  map[string]interface{}{"type": "integer"},
			},
		},
	}, func(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
		name := sampleNames[rand.Intn(len(sampleNames))]
		age := 20 + rand.Intn(50)
		return map[string]interface{}{
			"name": name,
			"age":  age,
		}, nil
	})
}
