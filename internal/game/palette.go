package game

import "math/rand"

// Палитра цветов игроков в формате 0xRRGGBB. Цвет выбирается
// случайно при первом подключении и сохраняется при переподключении.
var playerPalette = [...]uint32{
	0xff1717, // красный
	0x17ff17, // зелёный
	0x1717ff, // синий
	0xffff17, // жёлтый
	0xff7f17, // оранжевый
	0x7f17ff, // фиолетовый
	0x17ffff, // голубой
	0xff17ff, // пурпурный
	0xff7f7f, // розовый
}

// RandomColor возвращает равновероятный цвет из палитры
func RandomColor() uint32 {
	return playerPalette[rand.Intn(len(playerPalette))]
}

// Palette возвращает копию палитры
func Palette() []uint32 {
	out := make([]uint32, len(playerPalette))
	copy(out, playerPalette[:])
	return out
}
