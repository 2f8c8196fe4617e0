// Package overlay draws pose skeletons, joint angle labels and feedback text
// onto extracted frames.
package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"math"
	"strconv"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/formlab/formd/internal/pose"
)

// connections is the skeleton edge list over full-body landmark names.
var connections = [][2]string{
	// Upper body
	{pose.LandmarkLeftShoulder, pose.LandmarkRightShoulder},
	{pose.LandmarkLeftShoulder, pose.LandmarkLeftElbow},
	{pose.LandmarkLeftElbow, pose.LandmarkLeftWrist},
	{pose.LandmarkRightShoulder, pose.LandmarkRightElbow},
	{pose.LandmarkRightElbow, pose.LandmarkRightWrist},

	// Torso
	{pose.LandmarkLeftShoulder, pose.LandmarkLeftHip},
	{pose.LandmarkRightShoulder, pose.LandmarkRightHip},
	{pose.LandmarkLeftHip, pose.LandmarkRightHip},

	// Legs
	{pose.LandmarkLeftHip, pose.LandmarkLeftKnee},
	{pose.LandmarkLeftKnee, pose.LandmarkLeftAnkle},
	{pose.LandmarkRightHip, pose.LandmarkRightKnee},
	{pose.LandmarkRightKnee, pose.LandmarkRightAnkle},

	// Feet
	{pose.LandmarkLeftAnkle, pose.LandmarkLeftHeel},
	{pose.LandmarkLeftHeel, pose.LandmarkLeftFootIndex},
	{pose.LandmarkRightAnkle, pose.LandmarkRightHeel},
	{pose.LandmarkRightHeel, pose.LandmarkRightFootIndex},

	// Face
	{pose.LandmarkNose, pose.LandmarkLeftEye},
	{pose.LandmarkNose, pose.LandmarkRightEye},
	{pose.LandmarkLeftEye, pose.LandmarkLeftEar},
	{pose.LandmarkRightEye, pose.LandmarkRightEar},
}

// simpleConnections covers poses that only carry the four canonical joints,
// such as the built-in stub estimator's.
var simpleConnections = [][2]string{
	{pose.JointShoulder, pose.JointHip},
	{pose.JointHip, pose.JointKnee},
	{pose.JointKnee, pose.JointAnkle},
}

// Style holds the drawing parameters.
type Style struct {
	JointRadius       int
	JointColor        color.RGBA
	SkeletonColor     color.RGBA
	SkeletonThickness int
	TextColor         color.RGBA
}

// DefaultStyle returns the stock look: green joints, blue skeleton, light
// gray text.
func DefaultStyle() Style {
	return Style{
		JointRadius:       5,
		JointColor:        color.RGBA{G: 255, A: 255},
		SkeletonColor:     color.RGBA{B: 255, A: 255},
		SkeletonThickness: 2,
		TextColor:         color.RGBA{R: 225, G: 225, B: 225, A: 255},
	}
}

var face = basicfont.Face7x13

const lineHeight = 16

// Renderer draws overlays onto frames.
type Renderer struct {
	Style   Style
	Quality int // JPEG encode quality
}

// NewRenderer returns a renderer with the default style.
func NewRenderer() *Renderer {
	return &Renderer{Style: DefaultStyle(), Quality: 95}
}

// AnnotateJPEG decodes a JPEG frame, draws the skeleton, angle labels and
// feedback lines, and re-encodes it.
func (r *Renderer) AnnotateJPEG(data []byte, p pose.Pose, labels map[string]float64, feedback []string) ([]byte, error) {
	src, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	img := toRGBA(src)

	r.Draw(img, p, labels)
	r.DrawFeedback(img, feedback)

	q := r.Quality
	if q <= 0 {
		q = 95
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// Draw renders the skeleton, joint markers and angle labels. Labels are keyed
// by canonical joint name and placed just right of the joint. Pose
// coordinates are normalized to [0,1] and scaled to the image bounds.
func (r *Renderer) Draw(img *image.RGBA, p pose.Pose, labels map[string]float64) {
	b := img.Bounds()
	px := jointPixels(p, b)

	for _, edge := range connections {
		r.edgeLine(img, px, edge)
	}
	for _, edge := range simpleConnections {
		r.edgeLine(img, px, edge)
	}
	for _, pt := range px {
		fillCircle(img, pt.X, pt.Y, r.Style.JointRadius, r.Style.JointColor)
	}

	if len(labels) == 0 {
		return
	}
	npx := jointPixels(pose.Normalize(p), b)
	for joint, deg := range labels {
		pt, ok := npx[joint]
		if !ok {
			continue
		}
		r.drawText(img, strconv.Itoa(int(math.Round(deg))), pt.X+10, pt.Y)
	}
}

// DrawFeedback renders the feedback lines centered near the bottom edge.
func (r *Renderer) DrawFeedback(img *image.RGBA, lines []string) {
	b := img.Bounds()
	y := b.Max.Y - b.Dy()/10
	for i, msg := range lines {
		w := font.MeasureString(face, msg).Ceil()
		x := b.Min.X + (b.Dx()-w)/2
		r.drawText(img, msg, x, y+i*lineHeight)
	}
}

func (r *Renderer) edgeLine(img *image.RGBA, px map[string]image.Point, edge [2]string) {
	p1, ok1 := px[edge[0]]
	p2, ok2 := px[edge[1]]
	if !ok1 || !ok2 {
		return
	}
	drawLine(img, p1, p2, r.Style.SkeletonThickness, r.Style.SkeletonColor)
}

// drawText draws s with its baseline origin at (x, y), matching how the
// joint coordinates anchor labels.
func (r *Renderer) drawText(img *image.RGBA, s string, x, y int) {
	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(r.Style.TextColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// jointPixels scales normalized pose coordinates to pixel positions within b.
func jointPixels(p pose.Pose, b image.Rectangle) map[string]image.Point {
	px := make(map[string]image.Point, len(p))
	for name, pt := range p {
		px[name] = image.Point{
			X: b.Min.X + int(pt.X*float64(b.Dx())),
			Y: b.Min.Y + int(pt.Y*float64(b.Dy())),
		}
	}
	return px
}

func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}
