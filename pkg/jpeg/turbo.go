//go:build cgo && turbo

package jpeg

/*
#cgo pkg-config: libjpeg
#include <stdio.h>
#include <jpeglib.h>
#include <jerror.h>
#include <stdlib.h>
#include <string.h>
#include <setjmp.h>

typedef struct {
    struct jpeg_error_mgr pub;
    jmp_buf jump;
    char msg[JMSG_LENGTH_MAX];
} sizefit_error_mgr;

static void sizefit_error_exit(j_common_ptr cinfo) {
    sizefit_error_mgr *err = (sizefit_error_mgr *)cinfo->err;
    (*cinfo->err->format_message)(cinfo, err->msg);
    longjmp(err->jump, 1);
}

// Encodes planar 4:2:0 YCbCr. Chroma rows are interleaved into one
// scanline buffer because libjpeg wants packed input.
static int sizefit_encode_420(
    const unsigned char *y, int y_stride,
    const unsigned char *cb, const unsigned char *cr, int c_stride,
    int width, int height, int quality,
    unsigned char **out, unsigned long *out_size, char **errmsg) {

    struct jpeg_compress_struct cinfo;
    sizefit_error_mgr jerr;
    unsigned char *row = NULL;
    JSAMPROW rows[1];

    *out = NULL;
    *out_size = 0;
    *errmsg = NULL;

    cinfo.err = jpeg_std_error(&jerr.pub);
    jerr.pub.error_exit = sizefit_error_exit;
    if (setjmp(jerr.jump)) {
        *errmsg = strdup(jerr.msg);
        if (row) free(row);
        jpeg_destroy_compress(&cinfo);
        return -1;
    }

    jpeg_create_compress(&cinfo);
    jpeg_mem_dest(&cinfo, out, out_size);

    cinfo.image_width = width;
    cinfo.image_height = height;
    cinfo.input_components = 3;
    cinfo.in_color_space = JCS_YCbCr;
    jpeg_set_defaults(&cinfo);
    jpeg_set_quality(&cinfo, quality, TRUE);
    cinfo.dct_method = JDCT_FASTEST;
    cinfo.comp_info[0].h_samp_factor = 2;
    cinfo.comp_info[0].v_samp_factor = 2;
    cinfo.comp_info[1].h_samp_factor = 1;
    cinfo.comp_info[1].v_samp_factor = 1;
    cinfo.comp_info[2].h_samp_factor = 1;
    cinfo.comp_info[2].v_samp_factor = 1;

    jpeg_start_compress(&cinfo, TRUE);

    row = (unsigned char *)malloc(width * 3);
    while (cinfo.next_scanline < cinfo.image_height) {
        int yr = cinfo.next_scanline;
        const unsigned char *ys = y + yr * y_stride;
        const unsigned char *cbs = cb + (yr / 2) * c_stride;
        const unsigned char *crs = cr + (yr / 2) * c_stride;
        for (int x = 0; x < width; x++) {
            row[x * 3] = ys[x];
            row[x * 3 + 1] = cbs[x / 2];
            row[x * 3 + 2] = crs[x / 2];
        }
        rows[0] = row;
        jpeg_write_scanlines(&cinfo, rows, 1);
    }

    jpeg_finish_compress(&cinfo);
    free(row);
    jpeg_destroy_compress(&cinfo);
    return 0;
}
*/
import "C"

import (
	"fmt"
	"image"
	"unsafe"
)

// Accelerated reports whether libjpeg-turbo is linked in.
const Accelerated = true

func encodeYCbCr(img *image.YCbCr, quality int) ([]byte, error) {
	var (
		out    *C.uchar
		size   C.ulong
		errMsg *C.char
	)

	rc := C.sizefit_encode_420(
		(*C.uchar)(&img.Y[0]), C.int(img.YStride),
		(*C.uchar)(&img.Cb[0]), (*C.uchar)(&img.Cr[0]), C.int(img.CStride),
		C.int(img.Rect.Dx()), C.int(img.Rect.Dy()), C.int(quality),
		&out, &size, &errMsg,
	)
	if rc != 0 || out == nil {
		if errMsg != nil {
			defer C.free(unsafe.Pointer(errMsg))
			return nil, fmt.Errorf("libjpeg encode: %s", C.GoString(errMsg))
		}
		return nil, fmt.Errorf("libjpeg encode failed")
	}
	defer C.free(unsafe.Pointer(out))

	return C.GoBytes(unsafe.Pointer(out), C.int(size)), nil
}
