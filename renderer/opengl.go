package renderer

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/types"
	"github.com/go-gl/gl/v2.1/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// Coefficients for converting delta cursor movements to yaw/pitch camera angles.
	mouseSensitivityX float32 = 0.005
	mouseSensitivityY float32 = 0.005

	// Camera movement speed as a fraction of the eye to target distance.
	cameraMoveSpeed float32 = 0.05

	// Height in pixels for stacked series widgets
	stackedSeriesHeight uint32 = 20

	// Orbiting stops short of the poles to keep the camera basis stable.
	maxPoleCos float32 = 0.995
)

const (
	leftMouseButton  = 0
	rightMouseButton = 1
)

type cameraDirection uint8

const (
	moveForward cameraDirection = iota
	moveBackward
	moveLeft
	moveRight
)

func init() {
	// glfw event handling must run on the main thread.
	runtime.LockOSThread()
}

// An interactive opengl-based renderer.
type interactiveGLRenderer struct {
	*defaultRenderer

	// opengl handles
	window    *glfw.Window
	fbTexture uint32
	texFbo    uint32

	// state
	lastCursorPos types.Vec2
	mousePressed  [2]bool

	// mutex for synchronizing camera updates
	camMutex sync.Mutex

	// Display options
	showUI                bool
	blockAssignmentSeries *stackedSeries
}

// Create a new interactive opengl renderer using the specified block scheduler.
func NewInteractive(sc *scene.Scene, scheduler tracer.BlockScheduler, opts Options) (Renderer, error) {
	base, err := NewDefault(sc, scheduler, opts)
	if err != nil {
		return nil, err
	}

	r := &interactiveGLRenderer{
		defaultRenderer: base.(*defaultRenderer),
	}

	err = r.initGL(opts)
	if err != nil {
		r.Close()
		return nil, err
	}

	r.initUI()
	return r, nil
}

func (r *interactiveGLRenderer) Close() {
	if r.window != nil {
		r.window.SetShouldClose(true)
		r.window.Destroy()
		r.window = nil
		glfw.Terminate()
	}
	r.defaultRenderer.Close()
}

func (r *interactiveGLRenderer) initGL(opts Options) error {
	var err error
	if err = glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize glfw: %s", err.Error())
	}

	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ContextVersionMajor, 2)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	r.window, err = glfw.CreateWindow(int(opts.FrameW), int(opts.FrameH), "prism", nil, nil)
	if err != nil {
		return fmt.Errorf("could not create opengl window: %s", err.Error())
	}
	r.window.MakeContextCurrent()

	if err = gl.Init(); err != nil {
		return fmt.Errorf("could not init opengl: %s", err.Error())
	}

	// Setup texture for image data
	gl.GenTextures(1, &r.fbTexture)
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(opts.FrameW), int32(opts.FrameH), 0, gl.RGBA, gl.UNSIGNED_BYTE, nil)

	// Attach texture to FBO
	gl.GenFramebuffers(1, &r.texFbo)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
	gl.FramebufferTexture2D(gl.READ_FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, r.fbTexture, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)

	// Bind event callbacks
	r.window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
	r.window.SetKeyCallback(r.onKeyEvent)
	r.window.SetMouseButtonCallback(r.onMouseEvent)
	r.window.SetCursorPosCallback(r.onCursorPosEvent)

	return nil
}

// Render progressively until the window is closed. Once the requested
// sample count is reached the renderer idles until the camera changes.
func (r *interactiveGLRenderer) Render() error {
	for !r.window.ShouldClose() {
		glfw.PollEvents()

		spp := r.options.SamplesPerPixel
		if spp != 0 && r.SampleCount() >= spp {
			time.Sleep(10 * time.Millisecond)
			continue
		}

		if err := r.defaultRenderer.Render(); err != nil {
			return err
		}

		if err := r.blit(); err != nil {
			return err
		}

		// Display tracer stats
		if r.showUI {
			r.renderUI()
		}

		r.window.SwapBuffers()
	}
	return nil
}

// Upload the tonemapped frame to the texture and copy it to the window
// framebuffer.
func (r *interactiveGLRenderer) blit() error {
	frame, err := r.Frame()
	if err != nil {
		return err
	}
	img := Tonemap(frame, r.options.FrameW, r.options.FrameH, r.options.Exposure)

	w, h := int32(r.options.FrameW), int32(r.options.FrameH)
	gl.BindTexture(gl.TEXTURE_2D, r.fbTexture)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, w, h, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))

	// Image rows start at the top; flip while blitting.
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, r.texFbo)
	gl.BlitFramebuffer(0, 0, w, h, 0, h, w, 0, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, 0)
	return nil
}

func (r *interactiveGLRenderer) initUI() {
	// Setup ortho projection for UI bits
	gl.Disable(gl.DEPTH_TEST)
	gl.MatrixMode(gl.PROJECTION)
	gl.LoadIdentity()
	gl.Ortho(0, float64(r.options.FrameW), float64(r.options.FrameH), 0, -1, 1)
	gl.Viewport(0, 0, int32(r.options.FrameW), int32(r.options.FrameH))
	gl.MatrixMode(gl.MODELVIEW)
	gl.LoadIdentity()

	// Setup series
	r.blockAssignmentSeries = makeStackedSeries(len(r.tracers), int(r.options.FrameW))
}

func (r *interactiveGLRenderer) onBeforeShowUI() {
	r.blockAssignmentSeries.Clear()
}

func (r *interactiveGLRenderer) renderUI() {
	var y int32 = 1
	var frameW int32 = int32(r.options.FrameW) - 1
	gl.LineWidth(2.0)
	for seriesIndex, blockH := range r.blockAssignments {
		gl.Color3fv(&r.blockAssignmentSeries.colors[seriesIndex][0])
		gl.Begin(gl.LINE_LOOP)
		gl.Vertex2i(0, y)
		gl.Vertex2i(frameW, y)
		gl.Vertex2i(frameW, y+int32(blockH))
		gl.Vertex2i(0, y+int32(blockH))
		gl.End()

		y += int32(blockH)
	}

	for seriesIndex, blockH := range r.blockAssignments {
		r.blockAssignmentSeries.Append(seriesIndex, float32(blockH))
	}
	r.blockAssignmentSeries.Render(r.options.FrameH-stackedSeriesHeight, stackedSeriesHeight)
}

func (r *interactiveGLRenderer) onKeyEvent(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}

	var moveDir cameraDirection
	switch key {
	case glfw.KeyEscape:
		r.window.SetShouldClose(true)
		return
	case glfw.KeyUp:
		moveDir = moveForward
	case glfw.KeyDown:
		moveDir = moveBackward
	case glfw.KeyLeft:
		moveDir = moveLeft
	case glfw.KeyRight:
		moveDir = moveRight
	case glfw.KeyTab:
		r.showUI = !r.showUI
		if r.showUI {
			r.onBeforeShowUI()
		}
		return
	default:
		return
	}

	// Double speed if shift is pressed
	var speedScaler float32 = 1.0
	if (mods & glfw.ModShift) == glfw.ModShift {
		speedScaler = 2.0
	}
	r.SetCamera(moveCamera(r.Camera(), moveDir, speedScaler*cameraMoveSpeed))
}

func (r *interactiveGLRenderer) onMouseEvent(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mod glfw.ModifierKey) {
	if button != glfw.MouseButtonLeft && button != glfw.MouseButtonRight {
		return
	}

	r.mousePressed[leftMouseButton] = false
	r.mousePressed[rightMouseButton] = false

	if action == glfw.Press {
		xPos, yPos := w.GetCursorPos()
		r.lastCursorPos[0], r.lastCursorPos[1] = float32(xPos), float32(yPos)

		buttonIndex := leftMouseButton
		if button == glfw.MouseButtonRight {
			buttonIndex = rightMouseButton
		}

		r.mousePressed[buttonIndex] = true
	}
}

func (r *interactiveGLRenderer) onCursorPosEvent(w *glfw.Window, xPos, yPos float64) {
	if !r.mousePressed[leftMouseButton] && !r.mousePressed[rightMouseButton] {
		return
	}

	// Calculate delta movement and apply mouse sensitivity
	newPos := types.Vec2{float32(xPos), float32(yPos)}
	delta := types.Vec2{r.lastCursorPos[0] - newPos[0], r.lastCursorPos[1] - newPos[1]}
	delta[0] *= mouseSensitivityX
	delta[1] *= mouseSensitivityY
	r.lastCursorPos = newPos

	r.camMutex.Lock()
	defer r.camMutex.Unlock()

	if r.mousePressed[leftMouseButton] {
		// The left mouse button orbits the eye around the target
		r.SetCamera(orbitCamera(r.Camera(), delta[0], delta[1]))
	} else {
		// The right mouse button pans both eye and target
		r.SetCamera(panCamera(r.Camera(), delta[0], -delta[1]))
	}
}

// Rotate the camera position around its target by yaw radians about the up
// axis and pitch radians about the right axis.
func orbitCamera(cam *scene.Camera, yaw, pitch float32) *scene.Camera {
	out := *cam
	up := mgl32.Vec3(cam.Up).Normalize()
	offset := mgl32.Vec3(cam.Position.Sub(cam.LookAt))

	rot := mgl32.HomogRotate3D(yaw, up)
	if right := offset.Cross(up); right.Len() > 1e-6 {
		rot = rot.Mul4(mgl32.HomogRotate3D(pitch, right.Normalize()))
	}
	rotated := rot.Mul4x1(offset.Vec4(0)).Vec3()

	// Refuse to cross the poles.
	if cos := rotated.Normalize().Dot(up); cos > maxPoleCos || cos < -maxPoleCos {
		rotated = mgl32.HomogRotate3D(yaw, up).Mul4x1(offset.Vec4(0)).Vec3()
	}

	out.Position = cam.LookAt.Add(types.Vec3(rotated))
	return &out
}

// Translate both camera position and target along the camera basis.
func moveCamera(cam *scene.Camera, dir cameraDirection, speed float32) *scene.Camera {
	out := *cam
	right, _, forward := cam.Basis()
	dist := cam.LookAt.Sub(cam.Position).Len()
	step := speed * float32(math.Max(float64(dist), 1))

	var delta types.Vec3
	switch dir {
	case moveForward:
		delta = forward.Mul(step)
	case moveBackward:
		delta = forward.Mul(-step)
	case moveLeft:
		delta = right.Mul(-step)
	case moveRight:
		delta = right.Mul(step)
	}

	out.Position = cam.Position.Add(delta)
	out.LookAt = cam.LookAt.Add(delta)
	return &out
}

func panCamera(cam *scene.Camera, dx, dy float32) *scene.Camera {
	out := *cam
	right, up, _ := cam.Basis()
	dist := cam.LookAt.Sub(cam.Position).Len()
	delta := right.Mul(dx * dist).Add(up.Mul(dy * dist))
	out.Position = cam.Position.Add(delta)
	out.LookAt = cam.LookAt.Add(delta)
	return &out
}

type stackedSeries struct {
	series [][]float32
	colors []types.Vec3
}

func makeStackedSeries(numSeries, histCount int) *stackedSeries {
	s := &stackedSeries{
		series: make([][]float32, numSeries),
		colors: make([]types.Vec3, numSeries),
	}

	for sIndex := 0; sIndex < numSeries; sIndex++ {
		s.series[sIndex] = make([]float32, histCount)
		s.colors[sIndex] = types.Vec3{rand.Float32(), rand.Float32(), 1.0}
	}

	return s
}

// Clear series
func (s *stackedSeries) Clear() {
	for sIndex := range s.series {
		s.series[sIndex] = make([]float32, len(s.series[sIndex]))
	}
}

// Shift series values and append new value at the end.
func (s *stackedSeries) Append(seriesIndex int, val float32) {
	s.series[seriesIndex] = append(s.series[seriesIndex][1:], val)
}

func (s *stackedSeries) Render(rY, rHeight uint32) {
	if len(s.series) == 0 {
		return
	}

	gl.LineWidth(1.0)
	gl.Begin(gl.LINES)
	for x := 0; x < len(s.series[0]); x++ {
		var sum float32 = 0
		var scale float32 = 1.0
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sum += s.series[seriesIndex][x]
		}
		if sum > 0.0 {
			scale = float32(rHeight) / sum
		}

		var y float32 = float32(rY)
		for seriesIndex := 0; seriesIndex < len(s.series); seriesIndex++ {
			sH := s.series[seriesIndex][x] * scale
			gl.Color3fv(&s.colors[seriesIndex][0])
			gl.Vertex2f(float32(x), y)
			gl.Vertex2f(float32(x), y+sH)
			y += sH
		}
	}
	gl.End()
}
