package editor

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// ExtractedImage is the encoded fixed-resolution logo handed to a SettingsStore.
type ExtractedImage struct {
	Format Format `json:"format"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Data   []byte `json:"-"`
}

func (x ExtractedImage) MIMEType() string {
	switch x.Format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Ext is the file extension for the image format, without the dot.
func (x ExtractedImage) Ext() string {
	if x.Format == FormatJPEG {
		return "jpg"
	}
	return string(x.Format)
}

// DataURL embeds the encoded image in a data: URL.
func (x ExtractedImage) DataURL() string {
	return "data:" + x.MIMEType() + ";base64," + base64.StdEncoding.EncodeToString(x.Data)
}

func encode(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case FormatPNG:
		err = imaging.Encode(&buf, img, imaging.PNG)
	case FormatJPEG:
		err = imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case FormatWebP:
		err = webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)})
	default:
		err = fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
