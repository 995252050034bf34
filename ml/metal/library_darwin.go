//go:build darwin && arm64

package metal

/*
#cgo CFLAGS: -Werror -xobjective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework Metal -framework Foundation

@import Metal;

static CFTypeRef deviceNewLibraryWithFile(CFTypeRef devRef, const char *path, CFTypeRef *errOut) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		NSString *nsPath = [NSString stringWithUTF8String:path];
		NSError *err = nil;
		id<MTLLibrary> lib = [dev newLibraryWithFile:nsPath error:&err];
		if (err != nil && errOut != NULL) {
			*errOut = CFBridgingRetain([err localizedDescription]);
		}
		return CFBridgingRetain(lib);
	}
}

static CFTypeRef libraryNewFunction(CFTypeRef libRef, const char *name) {
	@autoreleasepool {
		id<MTLLibrary> lib = (__bridge id<MTLLibrary>)libRef;
		NSString *nsName = [NSString stringWithUTF8String:name];
		return CFBridgingRetain([lib newFunctionWithName:nsName]);
	}
}

static CFTypeRef deviceNewComputePipelineState(CFTypeRef devRef, CFTypeRef funcRef, CFTypeRef *errOut) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		id<MTLFunction> fn = (__bridge id<MTLFunction>)funcRef;
		NSError *err = nil;
		id<MTLComputePipelineState> pipe = [dev newComputePipelineStateWithFunction:fn error:&err];
		if (err != nil && errOut != NULL) {
			*errOut = CFBridgingRetain([err localizedDescription]);
		}
		return CFBridgingRetain(pipe);
	}
}

static NSUInteger pipelineMaxThreadsPerGroup(CFTypeRef pipeRef) {
	id<MTLComputePipelineState> pipe = (__bridge id<MTLComputePipelineState>)pipeRef;
	return [pipe maxTotalThreadsPerThreadgroup];
}

static void encSetPipeline(CFTypeRef encRef, CFTypeRef pipeRef) {
	id<MTLComputeCommandEncoder> enc = (__bridge id<MTLComputeCommandEncoder>)encRef;
	id<MTLComputePipelineState> pipe = (__bridge id<MTLComputePipelineState>)pipeRef;
	[enc setComputePipelineState:pipe];
}

static void encSetBytes(CFTypeRef encRef, const void *bytes, NSUInteger length, NSUInteger index) {
	id<MTLComputeCommandEncoder> enc = (__bridge id<MTLComputeCommandEncoder>)encRef;
	[enc setBytes:bytes length:length atIndex:index];
}

static void encSetBuffer(CFTypeRef encRef, CFTypeRef bufRef, NSUInteger offset, NSUInteger index) {
	id<MTLComputeCommandEncoder> enc = (__bridge id<MTLComputeCommandEncoder>)encRef;
	id<MTLBuffer> buf = (__bridge id<MTLBuffer>)bufRef;
	[enc setBuffer:buf offset:offset atIndex:index];
}

static void encDispatch(CFTypeRef encRef, NSUInteger gx, NSUInteger gy, NSUInteger gz, NSUInteger tx, NSUInteger ty, NSUInteger tz) {
	id<MTLComputeCommandEncoder> enc = (__bridge id<MTLComputeCommandEncoder>)encRef;
	MTLSize threadsPerGrid = MTLSizeMake(gx, gy, gz);
	MTLSize threadsPerGroup = MTLSizeMake(tx, ty, tz);
	[enc dispatchThreads:threadsPerGrid threadsPerThreadgroup:threadsPerGroup];
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ybubnov/metalchat/tensor"
)

// Library loads and caches compiled kernel functions by name. Kernels are
// named `<op>[_<block_size>]_<dtype>`; the library resolves them lazily
// on first reference against the compiled .metallib at path.
type Library struct {
	device *Device
	handle C.CFTypeRef

	mu    sync.Mutex
	cache map[string]*kernelFunc
}

func loadLibrary(device *Device, path string) (*Library, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var errRef C.CFTypeRef
	handle := C.deviceNewLibraryWithFile(device.handle, cPath, &errRef)
	if handle == 0 {
		if errRef != 0 {
			defer C.CFRelease(errRef)
			return nil, fmt.Errorf("metal: load library %s: %s", path, cfString(errRef))
		}
		return nil, fmt.Errorf("metal: load library %s", path)
	}
	return &Library{device: device, handle: handle, cache: make(map[string]*kernelFunc)}, nil
}

// lookup resolves name against the library, compiling and caching its
// pipeline state on first reference.
func (l *Library) lookup(name string) (*kernelFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if kf, ok := l.cache[name]; ok {
		return kf, nil
	}

	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	fn := C.libraryNewFunction(l.handle, cName)
	if fn == 0 {
		return nil, fmt.Errorf("%w: %s", ErrKernelNotFound, name)
	}

	var errRef C.CFTypeRef
	pipe := C.deviceNewComputePipelineState(l.device.handle, fn, &errRef)
	if pipe == 0 {
		C.CFRelease(fn)
		if errRef != 0 {
			defer C.CFRelease(errRef)
			return nil, fmt.Errorf("%w: %s: %s", ErrKernelNotFound, name, cfString(errRef))
		}
		return nil, fmt.Errorf("%w: %s", ErrKernelNotFound, name)
	}

	kf := &kernelFunc{name: name, function: fn, pipeline: pipe}
	l.cache[name] = kf
	return kf, nil
}

// kernelFunc is a compiled, cached kernel: an MTLFunction and its
// MTLComputePipelineState.
type kernelFunc struct {
	name     string
	function C.CFTypeRef
	pipeline C.CFTypeRef
}

func (kf *kernelFunc) maxThreadsPerGroup() int {
	return int(C.pipelineMaxThreadsPerGroup(kf.pipeline))
}

// encode binds task's pipeline, arguments, and dispatch into enc. Buffer
// offsets inside the argument table start at zero; a tensor's own offset
// travels inside its packed layout and is applied in the shader.
func (kf *kernelFunc) encode(enc C.CFTypeRef, task *Task) {
	C.encSetPipeline(enc, kf.pipeline)

	var index C.NSUInteger
	for _, arg := range task.Args {
		if arg.IsTensor() {
			layout := arg.view.Layout()
			C.encSetBytes(enc, unsafe.Pointer(&layout), C.NSUInteger(unsafe.Sizeof(layout)), index)
			index++

			handle, offset, err := nativeBuffer(arg.view.Container())
			if err != nil {
				// Argument binding failures are reported to the caller
				// through push's return, not surfaced mid-encode; a
				// non-GPU-backed container here is a caller bug.
				panic(err)
			}
			C.encSetBuffer(enc, handle, C.NSUInteger(offset), index)
			index++
			continue
		}

		C.encSetBytes(enc, unsafe.Pointer(&arg.scalar[0]), C.NSUInteger(len(arg.scalar)), index)
		index++
	}

	C.encDispatch(
		enc,
		C.NSUInteger(task.Grid.X), C.NSUInteger(task.Grid.Y), C.NSUInteger(task.Grid.Z),
		C.NSUInteger(task.Group.X), C.NSUInteger(task.Group.Y), C.NSUInteger(task.Group.Z),
	)
}

// nativeBuffer walks past any number of chained container slices to find
// the GPU buffer backing c, returning its handle and the byte offset
// within it.
func nativeBuffer(c tensor.Container) (C.CFTypeRef, int, error) {
	offset := c.Offset()
	for {
		if gb, ok := c.(*gpuBuffer); ok {
			return gb.handle, offset, nil
		}
		u, ok := c.(interface{ Unwrap() tensor.Container })
		if !ok {
			return 0, 0, fmt.Errorf("metal: container %T is not GPU-backed", c)
		}
		c = u.Unwrap()
	}
}

func cfString(ref C.CFTypeRef) string {
	// Error descriptions are retained as CFStringRef-compatible NSString
	// objects; a minimal bridge avoids pulling in CoreFoundation's string
	// accessors for what is purely diagnostic text.
	return fmt.Sprintf("<metal error 0x%x>", uintptr(unsafe.Pointer(ref)))
}
