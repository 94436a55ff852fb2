//go:build gphoto2

package tether

/*
#cgo pkg-config: libgphoto2
#include <gphoto2/gphoto2.h>
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/myki-jim/RapidRAW/internal/debug"
)

// gphotoDriver is the real libgphoto2-backed implementation. libgphoto2 is
// not thread-safe per camera, so every native call is serialized.
type gphotoDriver struct {
	mu     sync.Mutex
	camera *C.Camera
	gpctx  *C.GPContext
	model  string
}

// detectUSB autodetects and claims the first attached camera.
func detectUSB() (Driver, error) {
	gpctx := C.gp_context_new()

	var camera *C.Camera
	if rc := C.gp_camera_new(&camera); rc < C.GP_OK {
		C.gp_context_unref(gpctx)
		return nil, gpError("create camera", rc)
	}

	if rc := C.gp_camera_init(camera, gpctx); rc < C.GP_OK {
		C.gp_camera_free(camera)
		C.gp_context_unref(gpctx)
		err := gpError("autodetect", rc)
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "could not claim") || strings.Contains(msg, "usb") {
			return nil, fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	var abilities C.CameraAbilities
	model := "Unknown"
	if rc := C.gp_camera_get_abilities(camera, &abilities); rc >= C.GP_OK {
		model = C.GoString(&abilities.model[0])
	}
	debug.Driver("autodetect", model)

	return &gphotoDriver{camera: camera, gpctx: gpctx, model: model}, nil
}

func (d *gphotoDriver) Model() string { return d.model }
func (d *gphotoDriver) Port() string  { return "usb" }

// config fetches the widget tree and looks up one child by key. The caller
// must free the returned root (which owns the child).
func (d *gphotoDriver) config(key string) (root, child *C.CameraWidget, err error) {
	if rc := C.gp_camera_get_config(d.camera, &root, d.gpctx); rc < C.GP_OK {
		return nil, nil, gpError("get config", rc)
	}
	ckey := C.CString(key)
	defer C.free(unsafe.Pointer(ckey))
	if rc := C.gp_widget_get_child_by_name(root, ckey, &child); rc < C.GP_OK {
		C.gp_widget_free(root)
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return root, child, nil
}

func (d *gphotoDriver) Widget(key string) (Widget, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	root, child, err := d.config(key)
	if err != nil {
		return Widget{}, err
	}
	defer C.gp_widget_free(root)

	w := Widget{Key: key}

	var ro C.int
	if rc := C.gp_widget_get_readonly(child, &ro); rc >= C.GP_OK && ro != 0 {
		w.ReadOnly = true
	}

	var wt C.CameraWidgetType
	if rc := C.gp_widget_get_type(child, &wt); rc < C.GP_OK {
		return Widget{}, gpError("widget type", rc)
	}

	switch wt {
	case C.GP_WIDGET_RADIO, C.GP_WIDGET_MENU:
		w.Kind = Choice
		var val *C.char
		if rc := C.gp_widget_get_value(child, unsafe.Pointer(&val)); rc < C.GP_OK {
			return Widget{}, gpError("widget value", rc)
		}
		w.Value = C.GoString(val)
		n := C.gp_widget_count_choices(child)
		for i := C.int(0); i < n; i++ {
			var choice *C.char
			if rc := C.gp_widget_get_choice(child, i, &choice); rc >= C.GP_OK {
				w.Choices = append(w.Choices, C.GoString(choice))
			}
		}
	case C.GP_WIDGET_RANGE:
		w.Kind = Range
		var val C.float
		if rc := C.gp_widget_get_value(child, unsafe.Pointer(&val)); rc < C.GP_OK {
			return Widget{}, gpError("widget value", rc)
		}
		w.Number = float64(val)
	default:
		return Widget{}, fmt.Errorf("%w: %s is not a choice or range widget", ErrNotFound, key)
	}

	return w, nil
}

func (d *gphotoDriver) SetChoice(key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	root, child, err := d.config(key)
	if err != nil {
		return err
	}
	defer C.gp_widget_free(root)

	cval := C.CString(value)
	defer C.free(unsafe.Pointer(cval))
	if rc := C.gp_widget_set_value(child, unsafe.Pointer(cval)); rc < C.GP_OK {
		return gpError(fmt.Sprintf("set choice %q for %q", value, key), rc)
	}
	if rc := C.gp_camera_set_config(d.camera, root, d.gpctx); rc < C.GP_OK {
		return gpError(fmt.Sprintf("apply config %q", key), rc)
	}
	return nil
}

func (d *gphotoDriver) Capture() (FileRef, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	debug.Driver("capture", d.model)
	var path C.CameraFilePath
	if rc := C.gp_camera_capture(d.camera, C.GP_CAPTURE_IMAGE, &path, d.gpctx); rc < C.GP_OK {
		return FileRef{}, gpError("capture", rc)
	}
	return FileRef{
		Folder: C.GoString(&path.folder[0]),
		Name:   C.GoString(&path.name[0]),
	}, nil
}

func (d *gphotoDriver) Download(folder, name, localPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var file *C.CameraFile
	if rc := C.gp_file_new(&file); rc < C.GP_OK {
		return gpError("allocate file", rc)
	}
	defer C.gp_file_free(file)

	cfolder := C.CString(folder)
	cname := C.CString(name)
	cdst := C.CString(localPath)
	defer C.free(unsafe.Pointer(cfolder))
	defer C.free(unsafe.Pointer(cname))
	defer C.free(unsafe.Pointer(cdst))

	if rc := C.gp_camera_file_get(d.camera, cfolder, cname, C.GP_FILE_TYPE_NORMAL, file, d.gpctx); rc < C.GP_OK {
		return gpError(fmt.Sprintf("get %s/%s", folder, name), rc)
	}
	if rc := C.gp_file_save(file, cdst); rc < C.GP_OK {
		return gpError(fmt.Sprintf("save %s", localPath), rc)
	}
	return nil
}

func (d *gphotoDriver) WaitEvent(timeout time.Duration) (Event, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var evType C.CameraEventType
	var data unsafe.Pointer
	rc := C.gp_camera_wait_for_event(d.camera, C.int(timeout/time.Millisecond), &evType, &data, d.gpctx)
	if rc < C.GP_OK {
		return Event{}, gpError("wait for event", rc)
	}
	if data != nil {
		defer C.free(data)
	}

	switch evType {
	case C.GP_EVENT_FILE_ADDED:
		path := (*C.CameraFilePath)(data)
		return Event{Type: EventNewFile, File: FileRef{
			Folder: C.GoString(&path.folder[0]),
			Name:   C.GoString(&path.name[0]),
		}}, nil
	case C.GP_EVENT_FOLDER_ADDED:
		path := (*C.CameraFilePath)(data)
		return Event{Type: EventNewFolder, File: FileRef{
			Folder: C.GoString(&path.folder[0]),
			Name:   C.GoString(&path.name[0]),
		}}, nil
	case C.GP_EVENT_CAPTURE_COMPLETE:
		return Event{Type: EventCaptureComplete}, nil
	case C.GP_EVENT_TIMEOUT:
		return Event{Type: EventTimeout}, nil
	default:
		return Event{Type: EventUnknown}, nil
	}
}

func (d *gphotoDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.camera != nil {
		C.gp_camera_exit(d.camera, d.gpctx)
		C.gp_camera_free(d.camera)
		d.camera = nil
	}
	if d.gpctx != nil {
		C.gp_context_unref(d.gpctx)
		d.gpctx = nil
	}
	return nil
}

// gpError converts a libgphoto2 result code into an error carrying the
// library's own message text, which the session layer matches against
// disconnect indicators.
func gpError(op string, rc C.int) error {
	return fmt.Errorf("%s: %s", op, C.GoString(C.gp_result_as_string(rc)))
}
