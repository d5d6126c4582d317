// Command texture-upload creates a Vulkan device, generates a stack of
// procedural image layers, and uploads them as a sampled texture array,
// reporting how long the staged upload takes.
package main

import (
	"image"
	"image/color"
	"os"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/veandco/go-sdl2/sdl"
	core "github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"golang.org/x/exp/slog"
	"golang.org/x/sync/errgroup"

	"github.com/fennelgfx/vkimage"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}

const (
	layerWidth  = 256
	layerHeight = 256
	layerCount  = 8
)

type app struct {
	logger *slog.Logger

	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	physicalDevice core1_0.PhysicalDevice

	graphicsQueue       core1_0.Queue
	graphicsQueueFamily int
}

func (a *app) run() error {
	err := a.initWindow()
	if err != nil {
		return err
	}

	err = a.initVulkan()
	if err != nil {
		return err
	}
	defer a.cleanup()

	return a.uploadTexture()
}

func (a *app) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return err
	}

	// A hidden window is enough to load the Vulkan proc table.
	window, err := sdl.CreateWindow("texture-upload", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		1, 1, sdl.WINDOW_HIDDEN|sdl.WINDOW_VULKAN)
	if err != nil {
		return err
	}
	a.window = window

	a.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return err
	}

	return nil
}

func (a *app) initVulkan() error {
	err := a.createInstance()
	if err != nil {
		return err
	}

	err = a.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = a.pickPhysicalDevice()
	if err != nil {
		return err
	}

	return a.createLogicalDevice()
}

func (a *app) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logDebug,
	}
}

func (a *app) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "texture-upload",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := a.window.VulkanGetInstanceExtensions()
	extensions, _, err := a.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("missing required instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	layers, _, err := a.globalDriver.AvailableLayers()
	if err != nil {
		return err
	}

	validationAvailable := true
	for _, layer := range validationLayers {
		if _, hasValidation := layers[layer]; !hasValidation {
			validationAvailable = false
		}
	}

	if validationAvailable {
		_, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]
		if hasDebugUtils {
			instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, validationLayers...)
			instanceOptions.Next = a.debugMessengerOptions()
		}
	} else {
		a.logger.Warn("validation layers unavailable, running without them")
	}

	a.instanceDriver, _, err = a.globalDriver.CreateInstance(nil, instanceOptions)
	return err
}

func (a *app) setupDebugMessenger() error {
	if a.instanceDriver == nil {
		return errors.New("debug messenger requires an instance")
	}

	extensions, _, err := a.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}
	if _, hasDebugUtils := extensions[ext_debug_utils.ExtensionName]; !hasDebugUtils {
		return nil
	}

	a.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	a.debugMessenger, _, err = a.debugDriver.CreateDebugUtilsMessenger(nil, a.debugMessengerOptions())
	return err
}

func (a *app) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	a.logger.Warn("validation message",
		"severity", severity.String(),
		"type", msgType.String(),
		"message", data.Message)
	return false
}

func (a *app) pickPhysicalDevice() error {
	physicalDevices, _, err := a.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, device := range physicalDevices {
		family, found := a.findGraphicsQueueFamily(device)
		if found {
			a.physicalDevice = device
			a.graphicsQueueFamily = family
			break
		}
	}

	if !a.physicalDevice.Initialized() {
		return errors.New("failed to find a GPU with a graphics queue")
	}

	return nil
}

func (a *app) findGraphicsQueueFamily(device core1_0.PhysicalDevice) (int, bool) {
	queueFamilies := a.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(device)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if (queueFamily.QueueFlags & core1_0.QueueGraphics) != 0 {
			return queueFamilyIdx, true
		}
	}

	return 0, false
}

func (a *app) createLogicalDevice() error {
	var extensionNames []string

	// Required on portability (MoltenVK) implementations.
	extensions, _, err := a.instanceDriver.EnumerateDeviceExtensionProperties(a.physicalDevice)
	if err != nil {
		return err
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	a.deviceDriver, _, err = a.instanceDriver.CreateDevice(a.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{
			{
				QueueFamilyIndex: a.graphicsQueueFamily,
				QueuePriorities:  []float32{1.0},
			},
		},
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return err
	}

	a.graphicsQueue = a.deviceDriver.GetQueue(a.graphicsQueueFamily, 0)
	return nil
}

// generateLayers renders one gradient image per array layer, in parallel.
func generateLayers() ([]image.Image, error) {
	layers := make([]image.Image, layerCount)

	var group errgroup.Group
	for layerIdx := 0; layerIdx < layerCount; layerIdx++ {
		layerIdx := layerIdx
		group.Go(func() error {
			img := image.NewRGBA(image.Rect(0, 0, layerWidth, layerHeight))
			for y := 0; y < layerHeight; y++ {
				for x := 0; x < layerWidth; x++ {
					img.SetRGBA(x, y, color.RGBA{
						R: uint8(x),
						G: uint8(y),
						B: uint8(layerIdx * 255 / layerCount),
						A: 255,
					})
				}
			}
			layers[layerIdx] = img
			return nil
		})
	}

	err := group.Wait()
	return layers, err
}

func (a *app) uploadTexture() error {
	ctx, err := vkimage.NewRenderContext(vkimage.RenderContextCreateInfo{
		InstanceDriver:           a.instanceDriver,
		DeviceDriver:             a.deviceDriver,
		PhysicalDevice:           a.physicalDevice,
		GraphicsQueue:            a.graphicsQueue,
		GraphicsQueueFamilyIndex: a.graphicsQueueFamily,
		Logger:                   a.logger,
	})
	if err != nil {
		return err
	}
	defer ctx.Destroy()

	depthFormat := vkimage.FindDepthFormat(ctx)
	if depthFormat == core1_0.FormatUndefined {
		a.logger.Warn("no depth attachment format supported")
	} else {
		a.logger.Info("depth format selected",
			"format", depthFormat.String(),
			"stencil", vkimage.HasStencilComponent(depthFormat))
	}

	layers, err := generateLayers()
	if err != nil {
		return err
	}

	start := hrtime.Now()
	texture, err := vkimage.NewTextureFromImages(ctx, layers)
	if err != nil {
		return err
	}
	defer texture.Destroy()
	elapsed := hrtime.Since(start)

	a.logger.Info("texture uploaded",
		"width", layerWidth,
		"height", layerHeight,
		"layers", texture.Image.LayerCount(),
		"format", texture.Image.Format().String(),
		"elapsed", elapsed)

	return nil
}

func (a *app) cleanup() {
	if a.deviceDriver != nil {
		a.deviceDriver.DestroyDevice(nil)
		a.deviceDriver = nil
	}

	if a.debugMessenger.Initialized() {
		a.debugDriver.DestroyDebugUtilsMessenger(a.debugMessenger, nil)
	}

	if a.instanceDriver != nil {
		a.instanceDriver.DestroyInstance(nil)
		a.instanceDriver = nil
	}

	if a.window != nil {
		a.window.Destroy()
		a.window = nil
	}
	sdl.Quit()
}

func main() {
	runtime.LockOSThread()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	a := &app{logger: logger}
	err := a.run()
	if err != nil {
		logger.Error("texture upload failed", "err", err)
		os.Exit(1)
	}
}
