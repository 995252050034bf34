//go:build darwin && arm64

package metal

/*
#cgo CFLAGS: -Werror -xobjective-c -fmodules -fobjc-arc
#cgo LDFLAGS: -framework Metal -framework Foundation

@import Metal;

static CFTypeRef mtlCreateSystemDefaultDevice(void) {
	@autoreleasepool {
		id<MTLDevice> dev = MTLCreateSystemDefaultDevice();
		return CFBridgingRetain(dev);
	}
}

static CFTypeRef deviceNewCommandQueue(CFTypeRef devRef) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		return CFBridgingRetain([dev newCommandQueue]);
	}
}

static CFTypeRef deviceNewBuffer(CFTypeRef devRef, NSUInteger length) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		id<MTLBuffer> buf = [dev newBufferWithLength:length options:MTLResourceStorageModeShared];
		return CFBridgingRetain(buf);
	}
}

static CFTypeRef deviceNewBufferWithBytes(CFTypeRef devRef, const void *bytes, NSUInteger length) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		id<MTLBuffer> buf = [dev newBufferWithBytes:bytes length:length options:MTLResourceStorageModeShared];
		return CFBridgingRetain(buf);
	}
}

static CFTypeRef deviceNewBufferNoCopy(CFTypeRef devRef, void *bytes, NSUInteger length) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		id<MTLBuffer> buf = [dev newBufferWithBytesNoCopy:bytes
		                                            length:length
		                                           options:MTLResourceStorageModeShared
		                                       deallocator:nil];
		return CFBridgingRetain(buf);
	}
}

static NSUInteger deviceMaxBufferLength(CFTypeRef devRef) {
	id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
	return [dev maxBufferLength];
}

static void *bufferContents(CFTypeRef bufRef) {
	id<MTLBuffer> buf = (__bridge id<MTLBuffer>)bufRef;
	return [buf contents];
}

static CFTypeRef deviceNewResidencySet(CFTypeRef devRef) {
	@autoreleasepool {
		id<MTLDevice> dev = (__bridge id<MTLDevice>)devRef;
		MTLResidencySetDescriptor *desc = [MTLResidencySetDescriptor new];
		NSError *err = nil;
		id<MTLResidencySet> set = [dev newResidencySetWithDescriptor:desc error:&err];
		return CFBridgingRetain(set);
	}
}

static void residencySetAddAllocation(CFTypeRef setRef, CFTypeRef bufRef) {
	@autoreleasepool {
		id<MTLResidencySet> set = (__bridge id<MTLResidencySet>)setRef;
		id<MTLBuffer> buf = (__bridge id<MTLBuffer>)bufRef;
		[set addAllocation:buf];
		[set commit];
	}
}

static void residencySetRemoveAllocation(CFTypeRef setRef, CFTypeRef bufRef) {
	@autoreleasepool {
		id<MTLResidencySet> set = (__bridge id<MTLResidencySet>)setRef;
		id<MTLBuffer> buf = (__bridge id<MTLBuffer>)bufRef;
		[set removeAllocation:buf];
		[set commit];
	}
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/ybubnov/metalchat/alloc"
)

// Device wraps a single MTLDevice, its default command queue, and a lazily
// created residency set. The runtime targets exactly one accelerator per
// process; there is no multi-device coordination.
type Device struct {
	handle C.CFTypeRef
	queue  C.CFTypeRef

	mu        sync.Mutex
	residency C.CFTypeRef

	lib *Library
}

// NewDevice opens the system default Metal device and its command queue.
func NewDevice() (*Device, error) {
	h := C.mtlCreateSystemDefaultDevice()
	if h == 0 {
		return nil, ErrNoDevice
	}
	q := C.deviceNewCommandQueue(h)
	if q == 0 {
		C.CFRelease(h)
		return nil, fmt.Errorf("metal: failed to create command queue")
	}
	return &Device{handle: h, queue: q}, nil
}

// Close releases the device, its command queue, and residency set.
func (d *Device) Close() {
	d.mu.Lock()
	if d.residency != 0 {
		C.CFRelease(d.residency)
		d.residency = 0
	}
	d.mu.Unlock()

	if d.queue != 0 {
		C.CFRelease(d.queue)
		d.queue = 0
	}
	if d.handle != 0 {
		C.CFRelease(d.handle)
		d.handle = 0
	}
}

// NewStream opens a fresh logical kernel-dispatch stream bound to this
// device, whose threads (partitions) accept up to capacity tasks each.
func (d *Device) NewStream(capacity int) *Stream {
	return newStream(d, capacity)
}

// MaxBufferLength reports the largest single MTLBuffer this device will
// allocate, used by the archive loader to decide how many GPU buffers an
// archive's raw region must be split across.
func (d *Device) MaxBufferLength() int {
	return int(C.deviceMaxBufferLength(d.handle))
}

// Library lazily creates and caches this device's compiled kernel library.
func (d *Device) Library(path string) (*Library, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lib != nil {
		return d.lib, nil
	}
	lib, err := loadLibrary(d, path)
	if err != nil {
		return nil, err
	}
	d.lib = lib
	return lib, nil
}

func (d *Device) residencySet() C.CFTypeRef {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.residency == 0 {
		d.residency = C.deviceNewResidencySet(d.handle)
	}
	return d.residency
}

type gpuBuffer struct {
	handle C.CFTypeRef
	size   int
}

func (b *gpuBuffer) ByteSize() int { return b.size }
func (b *gpuBuffer) Offset() int   { return 0 }

func (b *gpuBuffer) Bytes() []byte {
	ptr := C.bufferContents(b.handle)
	if ptr == nil || b.size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(ptr), b.size)
}

func (b *gpuBuffer) Release() {
	if b.handle != 0 {
		C.CFRelease(b.handle)
		b.handle = 0
	}
}

// NewBuffer implements alloc.Device.
func (d *Device) NewBuffer(size int) (alloc.GPUBuffer, error) {
	h := C.deviceNewBuffer(d.handle, C.NSUInteger(size))
	if h == 0 {
		return nil, fmt.Errorf("metal: failed to allocate buffer of %d bytes", size)
	}
	return &gpuBuffer{handle: h, size: size}, nil
}

// NewBufferFrom implements alloc.Device.
func (d *Device) NewBufferFrom(src []byte, size int) (alloc.GPUBuffer, error) {
	var ptr unsafe.Pointer
	if len(src) > 0 {
		ptr = unsafe.Pointer(&src[0])
	}
	h := C.deviceNewBufferWithBytes(d.handle, ptr, C.NSUInteger(size))
	if h == 0 {
		return nil, fmt.Errorf("metal: failed to allocate buffer of %d bytes", size)
	}
	return &gpuBuffer{handle: h, size: size}, nil
}

// WrapNoCopy implements alloc.Device.
func (d *Device) WrapNoCopy(ptr []byte) (alloc.GPUBuffer, error) {
	if len(ptr) == 0 {
		return nil, fmt.Errorf("metal: cannot wrap an empty region")
	}
	h := C.deviceNewBufferNoCopy(d.handle, unsafe.Pointer(&ptr[0]), C.NSUInteger(len(ptr)))
	if h == 0 {
		return nil, fmt.Errorf("metal: failed to wrap %d bytes", len(ptr))
	}
	return &gpuBuffer{handle: h, size: len(ptr)}, nil
}

// MakeResident implements alloc.Device.
func (d *Device) MakeResident(bufs ...alloc.GPUBuffer) error {
	set := d.residencySet()
	for _, buf := range bufs {
		gb, ok := buf.(*gpuBuffer)
		if !ok {
			return fmt.Errorf("metal: buffer %T was not allocated by this device", buf)
		}
		C.residencySetAddAllocation(set, gb.handle)
	}
	return nil
}

// EndResidency implements alloc.Device.
func (d *Device) EndResidency(bufs ...alloc.GPUBuffer) error {
	set := d.residencySet()
	for _, buf := range bufs {
		gb, ok := buf.(*gpuBuffer)
		if !ok {
			return fmt.Errorf("metal: buffer %T was not allocated by this device", buf)
		}
		C.residencySetRemoveAllocation(set, gb.handle)
	}
	return nil
}
