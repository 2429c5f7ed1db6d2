// Package seed makes a fresh deployment usable: it ensures the seven fixed
// evaluation dimensions exist as questions and registers media files found
// in the blob store as instruction documents. Both operations are upserts,
// so reseeding on every boot is safe.
package seed

import (
	"context"
	"path"
	"strings"

	"github.com/usablelab/instrueval/internal/storage"
	"github.com/usablelab/instrueval/internal/survey"
)

var dimensions = []survey.Question{
	{Key: survey.DimSensoryConversion, Order: 1,
		Text: "How effectively do the instructions convey perceptual or visual information in non-visual, accessible terms (touch, sound, smell, or functional equivalents)?"},
	{Key: survey.DimProceduralStructure, Order: 2,
		Text: "Are steps logically ordered, single action making it easy to interpret and follow?"},
	{Key: survey.DimActionSpecificity, Order: 3,
		Text: "Do the instructions give enough non-visual spatial/temporal detail to perform each step confidently?"},
	{Key: survey.DimVerificationRecovery, Order: 4,
		Text: "To what extent can a user confirm progress non-visually and recover from common errors using the given instructions?"},
	{Key: survey.DimReferenceClarity, Order: 5,
		Text: "Are objects and actions named consistently, with references that are clear without looking?"},
	{Key: survey.DimPersonalization, Order: 6,
		Text: "Do the instructions adapt to the user's skill level or prior experiences?"},
	{Key: survey.DimCognitiveLoad, Order: 7,
		Text: "How mentally demanding is it to interpret and remember each step?"},
}

// Questions upserts the seven dimension questions.
func Questions(ctx context.Context, store survey.Store) error {
	for _, q := range dimensions {
		q.Active = true
		if err := store.UpsertQuestion(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Docs registers every media file under the instructions/ and videos/
// prefixes of the blob store as an active instruction document, keyed on
// file path. Titles default to the file name without extension.
func Docs(ctx context.Context, store survey.Store, blobs storage.BlobStore) error {
	for _, prefix := range []string{"instructions", "videos"} {
		keys, err := blobs.List(prefix)
		if err != nil {
			return err
		}
		for _, key := range keys {
			name := path.Base(key)
			doc := survey.InstructionDoc{
				Title:    strings.TrimSuffix(name, path.Ext(name)),
				FilePath: key,
				Kind:     survey.KindForFile(name),
				Active:   true,
			}
			if err := store.UpsertDoc(ctx, doc); err != nil {
				return err
			}
		}
	}
	return nil
}
