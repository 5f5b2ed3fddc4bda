package llm

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const jpegQuality = 90

// imageParts converts image references (local paths or URLs) into inline
// message parts. PNG files are re-encoded to JPEG before transmission.
func imageParts(images []string) ([]openai.ChatMessagePart, error) {
	parts := make([]openai.ChatMessagePart, 0, len(images))
	for _, ref := range images {
		url, err := imageDataURL(ref)
		if err != nil {
			return nil, err
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}
	return parts, nil
}

func imageDataURL(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", ref, err)
	}
	if strings.EqualFold(filepath.Ext(ref), ".png") {
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			return "", fmt.Errorf("decode png %s: %w", ref, err)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return "", fmt.Errorf("encode jpeg %s: %w", ref, err)
		}
		data = buf.Bytes()
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}
