// Command emulator is a thin SDL2 host harness: it owns the window, polls
// input, drains the audio ring buffer into an SDL audio device, and blits
// both GPU framebuffers. It contains no emulation semantics of its own.
package main

import (
	"flag"
	"fmt"
	"os"
	"unsafe"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/dualcore-ds/core/internal/debug"
	"github.com/dualcore-ds/core/internal/emulator"
	"github.com/dualcore-ds/core/internal/gpu"
	"github.com/dualcore-ds/core/internal/input"
)

func main() {
	romPath := flag.String("rom", "", "Path to ROM file")
	statePath := flag.String("state", "", "Save state file to load at startup")
	unlimited := flag.Bool("unlimited", false, "Run at unlimited speed (no frame limit)")
	scale := flag.Int("scale", 2, "Display scale (1-6)")
	enableLogging := flag.Bool("log", false, "Enable structured logging (disabled by default)")
	flag.Parse()

	if *romPath == "" {
		fmt.Println("Usage: core -rom <path-to-rom>")
		fmt.Println("  -rom <path>      Path to ROM file")
		fmt.Println("  -state <path>    Save state file to load at startup")
		fmt.Println("  -unlimited       Run at unlimited speed")
		fmt.Println("  -scale <1-6>     Display scale (default: 2)")
		fmt.Println("  -log             Enable structured logging (disabled by default)")
		os.Exit(1)
	}
	if *scale < 1 || *scale > 6 {
		fmt.Fprintf(os.Stderr, "Error: scale must be between 1 and 6\n")
		os.Exit(1)
	}

	romData, err := os.ReadFile(*romPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading ROM file: %v\n", err)
		os.Exit(1)
	}

	emu, err := newEmulator(*enableLogging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating emulator: %v\n", err)
		os.Exit(1)
	}

	if err := emu.LoadROM(romData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading ROM: %v\n", err)
		os.Exit(1)
	}
	if *statePath != "" {
		if err := emu.LoadStateFromFile(*statePath); err != nil {
			fmt.Fprintf(os.Stderr, "Error loading save state: %v\n", err)
			os.Exit(1)
		}
	}
	emu.SetFrameLimit(!*unlimited)

	host, err := newHost(emu, *scale)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating display: %v\n", err)
		os.Exit(1)
	}
	defer host.cleanup()

	fmt.Printf("ROM loaded: %s\n", *romPath)
	fmt.Println("Space: pause/resume | Ctrl+R: reset | F5: save state | F9: load state | ESC: quit")

	if err := host.run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newEmulator(enableLogging bool) (*emulator.Emulator, error) {
	if !enableLogging {
		return emulator.NewEmulator()
	}

	logger := debug.NewLogger(10000)
	logger.SetComponentEnabled(debug.ComponentCPU9, true)
	logger.SetComponentEnabled(debug.ComponentCPU7, true)
	logger.SetComponentEnabled(debug.ComponentGPU, true)
	logger.SetComponentEnabled(debug.ComponentAudio, true)
	logger.SetComponentEnabled(debug.ComponentMemory, true)
	logger.SetComponentEnabled(debug.ComponentDMA, true)
	logger.SetComponentEnabled(debug.ComponentTimer, true)
	logger.SetComponentEnabled(debug.ComponentIRQ, true)
	logger.SetComponentEnabled(debug.ComponentIPC, true)
	logger.SetComponentEnabled(debug.ComponentInput, true)
	logger.SetComponentEnabled(debug.ComponentSystem, true)
	logger.SetMinLevel(debug.LogLevelInfo)
	return emulator.NewEmulatorWithLogger(logger)
}

const (
	screenW        = gpu.ScreenWidth
	screenH        = gpu.ScreenHeight
	audioSampleHz  = 44100
	audioBatchSize = 2048 // interleaved float32 samples drained per host tick
)

// host owns every SDL resource: window, renderer, the two screen textures,
// and the audio device the ring buffer is drained into.
type host struct {
	emu *emulator.Emulator

	window   *sdl.Window
	renderer *sdl.Renderer
	top      *sdl.Texture
	bottom   *sdl.Texture
	audioDev sdl.AudioDeviceID

	scale   int
	running bool

	audioScratch []float32
	pixelScratch []byte
}

func newHost(emu *emulator.Emulator, scale int) (*host, error) {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_AUDIO); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "0")

	width := int32(screenW * scale)
	height := int32(2 * screenH * scale)
	window, err := sdl.CreateWindow("dualcore", sdl.WINDOWPOS_CENTERED, sdl.WINDOWPOS_CENTERED, width, height, sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, fmt.Errorf("create window: %w", err)
	}

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("create renderer: %w", err)
	}

	top, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGB24, sdl.TEXTUREACCESS_STREAMING, screenW, screenH)
	if err != nil {
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("create top texture: %w", err)
	}
	bottom, err := renderer.CreateTexture(sdl.PIXELFORMAT_RGB24, sdl.TEXTUREACCESS_STREAMING, screenW, screenH)
	if err != nil {
		top.Destroy()
		renderer.Destroy()
		window.Destroy()
		sdl.Quit()
		return nil, fmt.Errorf("create bottom texture: %w", err)
	}

	audioSpec := sdl.AudioSpec{Freq: audioSampleHz, Format: sdl.AUDIO_F32, Channels: 2, Samples: 1024}
	audioDev, err := sdl.OpenAudioDevice("", false, &audioSpec, nil, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: audio device unavailable: %v\n", err)
		audioDev = 0
	} else {
		sdl.PauseAudioDevice(audioDev, false)
	}

	return &host{
		emu: emu, window: window, renderer: renderer,
		top: top, bottom: bottom, audioDev: audioDev,
		scale: scale, running: true,
		audioScratch: make([]float32, audioBatchSize),
		pixelScratch: make([]byte, screenW*screenH*3),
	}, nil
}

func (h *host) run() error {
	h.emu.Start()
	for h.running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			h.handleEvent(event)
		}
		h.updateButtons()
		h.emu.RunFrame()
		h.drainAudio()
		if err := h.render(); err != nil {
			return err
		}
		sdl.Delay(1)
	}
	return nil
}

func (h *host) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		h.running = false
	case *sdl.KeyboardEvent:
		if e.Type != sdl.KEYDOWN {
			return
		}
		switch e.Keysym.Sym {
		case sdl.K_ESCAPE:
			h.running = false
		case sdl.K_SPACE:
			if h.emu.Paused {
				h.emu.Resume()
			} else {
				h.emu.Pause()
			}
		case sdl.K_r:
			if sdl.GetModState()&sdl.KMOD_CTRL != 0 {
				h.emu.Reset()
			}
		case sdl.K_F5:
			if err := h.emu.SaveStateToFile("quicksave.state"); err != nil {
				fmt.Fprintf(os.Stderr, "save state failed: %v\n", err)
			}
		case sdl.K_F9:
			if err := h.emu.LoadStateFromFile("quicksave.state"); err != nil {
				fmt.Fprintf(os.Stderr, "load state failed: %v\n", err)
			}
		}
	}
}

// updateButtons maps a fixed keyboard layout onto the 10-bit key register
// plus the X/Y extended bits (spec.md §6 register set).
func (h *host) updateButtons() {
	keys := sdl.GetKeyboardState()
	set := func(scancode int, bit int) { h.emu.SetButtons(bit, keys[scancode] != 0) }

	set(sdl.SCANCODE_UP, input.BitUp)
	set(sdl.SCANCODE_DOWN, input.BitDown)
	set(sdl.SCANCODE_LEFT, input.BitLeft)
	set(sdl.SCANCODE_RIGHT, input.BitRight)
	set(sdl.SCANCODE_Z, input.BitA)
	set(sdl.SCANCODE_X, input.BitB)
	set(sdl.SCANCODE_Q, input.BitL)
	set(sdl.SCANCODE_W, input.BitR)
	set(sdl.SCANCODE_RETURN, input.BitStart)
	set(sdl.SCANCODE_RSHIFT, input.BitSelect)

	h.emu.SetExtendedButton(input.BitX, keys[sdl.SCANCODE_A] != 0)
	h.emu.SetExtendedButton(input.BitY, keys[sdl.SCANCODE_S] != 0)
}

func (h *host) drainAudio() {
	if h.audioDev == 0 {
		return
	}
	n := h.emu.Audio.Drain(h.audioScratch)
	if n == 0 {
		return
	}
	samples := h.audioScratch[:n*2]
	bytes := make([]byte, len(samples)*4)
	for i, s := range samples {
		b := (*[4]byte)(unsafe.Pointer(&s))
		copy(bytes[i*4:], b[:])
	}
	if err := sdl.QueueAudio(h.audioDev, bytes); err != nil {
		fmt.Fprintf(os.Stderr, "queue audio: %v\n", err)
	}
}

func (h *host) render() error {
	if err := h.blit(h.top, &h.emu.GPU.FrameA); err != nil {
		return err
	}
	if err := h.blit(h.bottom, &h.emu.GPU.FrameB); err != nil {
		return err
	}

	h.renderer.Clear()
	topRect := &sdl.Rect{X: 0, Y: 0, W: int32(screenW * h.scale), H: int32(screenH * h.scale)}
	bottomRect := &sdl.Rect{X: 0, Y: int32(screenH * h.scale), W: int32(screenW * h.scale), H: int32(screenH * h.scale)}
	if err := h.renderer.Copy(h.top, nil, topRect); err != nil {
		return fmt.Errorf("copy top screen: %w", err)
	}
	if err := h.renderer.Copy(h.bottom, nil, bottomRect); err != nil {
		return fmt.Errorf("copy bottom screen: %w", err)
	}
	h.renderer.Present()
	return nil
}

func (h *host) blit(tex *sdl.Texture, frame *[screenH][screenW]gpu.Pixel) error {
	for y := 0; y < screenH; y++ {
		for x := 0; x < screenW; x++ {
			px := frame[y][x]
			i := (y*screenW + x) * 3
			h.pixelScratch[i] = px.R
			h.pixelScratch[i+1] = px.G
			h.pixelScratch[i+2] = px.B
		}
	}
	return tex.Update(nil, unsafe.Pointer(&h.pixelScratch[0]), screenW*3)
}

func (h *host) cleanup() {
	if h.audioDev != 0 {
		sdl.CloseAudioDevice(h.audioDev)
	}
	h.top.Destroy()
	h.bottom.Destroy()
	h.renderer.Destroy()
	h.window.Destroy()
	sdl.Quit()
}
