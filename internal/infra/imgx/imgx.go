package imgx

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultBlurSigma 对应 21x21 高斯核的默认 sigma（0.3*((21-1)*0.5-1)+0.8）。
const DefaultBlurSigma = 3.5

// SmoothGray 生成用于比较的平滑灰度图：先灰度化，再高斯模糊（压制噪点与编码块效应）。
//
// 约束：
// - 只用于比较，不用于落盘（落盘永远是原始彩色帧）
// - 输出尺寸与输入一致
func SmoothGray(img image.Image, sigma float64) *image.Gray {
	g := imaging.Grayscale(img)
	if sigma > 0 {
		g = imaging.Blur(g, sigma)
	}
	b := g.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	// Grayscale 的输出 R=G=B，取 R 通道即可。
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()*4]
		dst := out.Pix[y*out.Stride : y*out.Stride+b.Dx()]
		for x := range dst {
			dst[x] = src[x*4]
		}
	}
	return out
}

// EncodeJPEG 把图片编码为 JPEG。
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, errors.New("图片为空")
	}
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// ThumbnailJPEG 读取图片并等比缩放到 maxSide 以内（只缩不放），编码为 JPEG。
// 用于把关键帧发给视觉模型前压缩体积。
func ThumbnailJPEG(path string, maxSide int) ([]byte, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	return EncodeJPEG(img, 85)
}
