package services

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/stridehq/stride/internal/calendar"
	"github.com/stridehq/stride/internal/models"
)

var (
	fontOnce     sync.Once
	parsedGoFont *opentype.Font
	parsedGoErr  error
)

// RenderProgressPNG renders a year heatmap of daily check-ins for reminder
// emails and share links. One column per ISO-style week, one row per
// weekday, GitHub-contribution style.
func RenderProgressPNG(title string, year int, state models.ProgressState) ([]byte, error) {
	const width = 1200
	const height = 630
	const padding = 40
	const headerHeight = 90
	const cellGap = 2

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.RGBA{0xFA, 0xF9, 0xF7, 0xFF}}, image.Point{}, draw.Src)

	headerFace, err := newFontFace(32)
	if err != nil {
		return nil, err
	}
	defer func() { _ = headerFace.Close() }()

	statsFace, err := newFontFace(16)
	if err != nil {
		return nil, err
	}
	defer func() { _ = statsFace.Close() }()

	checked := 0
	for _, done := range state.DailyCheckIns {
		if done {
			checked++
		}
	}
	statsLine := fmt.Sprintf("%d check-ins - %d pts - best streak %d", checked, state.EarnedPoints, state.LongestStreak)

	drawText(img, headerFace, padding, 48, title, color.RGBA{0x2D, 0x2D, 0x2D, 0xFF})
	drawText(img, statsFace, padding, 76, statsLine, color.RGBA{0x6B, 0x6B, 0x6B, 0xFF})

	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	// Column 0 holds the week containing Jan 1; Monday is row 0.
	weekCols := 53
	gridWidth := width - padding*2
	gridHeight := height - headerHeight - padding*2
	cellSize := minInt(gridWidth/weekCols, gridHeight/7)

	gridLeft := (width - cellSize*weekCols) / 2
	gridTop := headerHeight + padding

	col := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		row := mondayIndex(d.Weekday())
		if d.After(start) && row == 0 {
			col++
		}
		if col >= weekCols {
			break
		}

		rect := image.Rect(
			gridLeft+col*cellSize+cellGap,
			gridTop+row*cellSize+cellGap,
			gridLeft+(col+1)*cellSize-cellGap,
			gridTop+(row+1)*cellSize-cellGap,
		)

		bg := color.RGBA{0xEA, 0xE8, 0xE3, 0xFF}
		if state.DailyCheckIns[d.Format(calendar.DateLayout)] {
			bg = color.RGBA{0x2E, 0xA8, 0x7E, 0xFF}
		}
		draw.Draw(img, rect, &image.Uniform{C: bg}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func mondayIndex(w time.Weekday) int {
	if w == time.Sunday {
		return 6
	}
	return int(w) - 1
}

func newFontFace(size float64) (*opentype.Face, error) {
	fontOnce.Do(func() {
		parsedGoFont, parsedGoErr = opentype.Parse(goregular.TTF)
	})
	if parsedGoErr != nil {
		return nil, fmt.Errorf("parse font: %w", parsedGoErr)
	}
	face, err := opentype.NewFace(parsedGoFont, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("load font face: %w", err)
	}
	otFace, ok := face.(*opentype.Face)
	if !ok {
		return nil, fmt.Errorf("load font face: unexpected type")
	}
	return otFace, nil
}

func drawText(img draw.Image, face font.Face, x, y int, text string, clr color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
